package generator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"storyreel/internal/domain/story"
	"storyreel/internal/remote"
)

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func parseOutline(text string) ([]story.Chapter, error) {
	text = stripFences(text)
	if text == "" {
		return nil, &remote.ParseError{What: "outline", Err: fmt.Errorf("empty response")}
	}

	var chapters []story.Chapter
	if err := json.Unmarshal([]byte(text), &chapters); err != nil {
		return nil, &remote.ParseError{What: "outline", Err: err}
	}
	if len(chapters) == 0 {
		return nil, &remote.ParseError{What: "outline", Err: fmt.Errorf("no chapters")}
	}

	seen := make(map[int]bool, len(chapters))
	for _, ch := range chapters {
		if ch.Number < 1 {
			return nil, &remote.ParseError{What: "outline", Err: fmt.Errorf("invalid chapter number %d", ch.Number)}
		}
		if seen[ch.Number] {
			return nil, &remote.ParseError{What: "outline", Err: fmt.Errorf("duplicate chapter number %d", ch.Number)}
		}
		seen[ch.Number] = true
	}

	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Number < chapters[j].Number })
	return chapters, nil
}

// parseScript decodes a scene list. Every scene starts loading with no
// assets attached.
func parseScript(text string) ([]story.Scene, error) {
	text = stripFences(text)
	if text == "" {
		return nil, &remote.ParseError{What: "script", Err: fmt.Errorf("empty response")}
	}

	var scenes []story.Scene
	if err := json.Unmarshal([]byte(text), &scenes); err != nil {
		return nil, &remote.ParseError{What: "script", Err: err}
	}
	if len(scenes) == 0 {
		return nil, &remote.ParseError{What: "script", Err: fmt.Errorf("no scenes")}
	}

	seen := make(map[int]bool, len(scenes))
	for i := range scenes {
		sc := &scenes[i]
		if strings.TrimSpace(sc.Text) == "" {
			return nil, &remote.ParseError{What: "script", Err: fmt.Errorf("scene %d has no text", sc.ID)}
		}
		if seen[sc.ID] {
			return nil, &remote.ParseError{What: "script", Err: fmt.Errorf("duplicate scene id %d", sc.ID)}
		}
		seen[sc.ID] = true

		if strings.TrimSpace(sc.Speaker) == "" {
			sc.Speaker = story.Narrator
		}
		sc.Image = ""
		sc.Audio = ""
		sc.Loading = true
	}

	if len(scenes) < minScenes || len(scenes) > maxScenes {
		logrus.WithFields(logrus.Fields{
			"scenes": len(scenes),
			"min":    minScenes,
			"max":    maxScenes,
		}).Warn("Script scene count outside the requested range")
	}

	return scenes, nil
}
