package bilibili_test

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/italolelis/bilidown/internal/bilibili"
	"github.com/italolelis/bilidown/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	minimalTitle = `<title data-vue-meta="true">示例视频_哔哩哔哩_bilibili</title>`
	minimalVideo = `"video":[{"id":80,"baseUrl":"https://cdn.example.com/v.m4s"}]`
	minimalAudio = `"audio":[{"id":30280,"baseUrl":"https://cdn.example.com/a.m4s"}]`
)

func TestLocate_Fixture(t *testing.T) {
	page, err := os.ReadFile("testdata/video_page.html")
	require.NoError(t, err)

	ref, err := bilibili.Locate(string(page))
	require.NoError(t, err)

	assert.Equal(t, "示例视频 & 更多", ref.Title)
	assert.Equal(t, "https://upos-sz.example.com/upgcxcode/video-80.m4s?deadline=1700000000", ref.VideoURL)
	assert.Equal(t, "https://upos-sz.example.com/upgcxcode/audio-30280.m4s", ref.AudioURL)
}

func TestLocate_Variants(t *testing.T) {
	tests := []struct {
		name string
		page string
		want media.Reference
	}{
		{
			name: "minimal",
			page: minimalTitle + `<script>{` + minimalVideo + `,` + minimalAudio + `}</script>`,
			want: media.Reference{Title: "示例视频", VideoURL: "https://cdn.example.com/v.m4s", AudioURL: "https://cdn.example.com/a.m4s"},
		},
		{
			name: "whitespace everywhere",
			page: "<title>\n   Spaced Title \t_哔哩哔哩_bilibili </title>" +
				`"video" :  [  { "id" : 1 , "baseUrl" : "https://cdn.example.com/v.m4s" } ]` +
				"\n\n" + `"audio":[` + "\n" + `{"baseUrl":"https://cdn.example.com/a.m4s"}]`,
			want: media.Reference{Title: "Spaced Title", VideoURL: "https://cdn.example.com/v.m4s", AudioURL: "https://cdn.example.com/a.m4s"},
		},
		{
			name: "audio before video and unrelated json",
			page: `{"unrelated":{"baseUrl":"https://nope"},` + minimalAudio + `,"x":[1,2],` + minimalVideo + `}` + minimalTitle,
			want: media.Reference{Title: "示例视频", VideoURL: "https://cdn.example.com/v.m4s", AudioURL: "https://cdn.example.com/a.m4s"},
		},
		{
			name: "unicode escape in url",
			page: minimalTitle + `"video":[{"baseUrl":"https://cdn.example.com/v.m4s?a=1\u0026b=2"}]` + minimalAudio,
			want: media.Reference{Title: "示例视频", VideoURL: "https://cdn.example.com/v.m4s?a=1&b=2", AudioURL: "https://cdn.example.com/a.m4s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := bilibili.Locate(tt.page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref)
		})
	}
}

func TestLocate_AllOrNothing(t *testing.T) {
	tests := []struct {
		name      string
		page      string
		wantField string
	}{
		{"missing title", minimalVideo + minimalAudio, "title"},
		{"title without site suffix", `<title>示例视频</title>` + minimalVideo + minimalAudio, "title"},
		{"blank title", `<title>   _哔哩哔哩_bilibili</title>` + minimalVideo + minimalAudio, "title"},
		{"missing video", minimalTitle + minimalAudio, "video"},
		{"missing audio", minimalTitle + minimalVideo, "audio"},
		{"baseUrl outside first object", minimalTitle + minimalVideo + `"audio":[{"id":1},{"baseUrl":"https://cdn.example.com/a.m4s"}]`, "audio"},
		{"login wall", `<html><title>登录 - 哔哩哔哩</title></html>`, "title"},
		{"empty", "", "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := bilibili.Locate(tt.page)
			assert.Equal(t, media.Reference{}, ref)

			var extractionErr *media.ExtractionError
			require.True(t, errors.As(err, &extractionErr), "expected ExtractionError, got %v", err)
			assert.Equal(t, tt.wantField, extractionErr.Field)
		})
	}
}

func TestLocate_IgnoresLaterStreams(t *testing.T) {
	page := minimalTitle +
		strings.Replace(minimalVideo, `}]`, `},{"baseUrl":"https://cdn.example.com/second.m4s"}]`, 1) +
		minimalAudio

	ref, err := bilibili.Locate(page)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v.m4s", ref.VideoURL)
}
