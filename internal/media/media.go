package media

// Role identifies one of the two elementary streams of a video.
type Role string

const (
	RoleVideo Role = "video"
	RoleAudio Role = "audio"
)

func (r Role) String() string {
	return string(r)
}

// PageRequest is what the page fetcher needs for one authenticated GET.
type PageRequest struct {
	URL    string
	Cookie string
}

// Reference is the title and stream URLs located in a video page.
// A Reference is only ever produced with all three fields set.
type Reference struct {
	Title    string
	VideoURL string
	AudioURL string
}

// URL returns the stream URL for the given role.
func (r Reference) URL(role Role) string {
	if role == RoleAudio {
		return r.AudioURL
	}

	return r.VideoURL
}

// Target is a stream source and the local temp file it is downloaded to.
type Target struct {
	Role      Role
	SourceURL string
	Path      string
}
