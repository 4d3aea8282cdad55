package generator

import (
	"fmt"
	"strings"

	"storyreel/internal/domain/story"
	"storyreel/internal/remote/gemini"
)

const DefaultSystemInstruction = "You are a best-selling web novel author."

// DefaultNarrativeContext is the premise every outline and script is written
// against.
const DefaultNarrativeContext = `現在，假設你是頂級網絡爽文作家，請寫一篇現代都市修仙文。
文字的風格參考：“明明他是位面至尊強者 卻讓女兒流落街頭賣花賺錢補貼家用 當他得知這一切時恨不得抽死自己。直到兩個女兒站在面前哭著說爸爸 你終於回來了的時候 3,000年來 不管多苦多難都沒流過淚的先尊再也止不住的淚流滿面”。
設定是男主（葉凡）爲了修煉離開地球很久（3000年，但在地球只過了5年），回來卻發現自己多了兩個雙胞胎女兒（平平和安安），而且淪落街頭，妻子失蹤/被迫害。
男主是“北冥仙尊”，擁有無上法力。
故事主調：復仇、護娃、扮豬吃老虎、打臉豪門反派。`

const (
	minScenes = 6
	maxScenes = 8
)

func outlinePrompt(premise string, chapters int) string {
	return fmt.Sprintf("%s\n\n請列出一個包含 %d 個章節的詳細目錄。輸出必須是JSON格式。", strings.TrimSpace(premise), chapters)
}

func scriptPrompt(premise string, chapter story.Chapter) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(premise))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "當前章節：第%d章 - %s\n", chapter.Number, chapter.Title)
	fmt.Fprintf(&b, "大綱摘要：%s\n\n", chapter.Summary)
	b.WriteString("任務：請將本章節改編爲“動態漫”的分鏡腳本。\n")
	b.WriteString("要求：\n")
	fmt.Fprintf(&b, "1. 生成 %d-%d 個關鍵場景（Scene）。\n", minScenes, maxScenes)
	b.WriteString("2. 每個場景包含：\n")
	b.WriteString("   - description: 用於生成圖片的英文提示詞 (Visual Prompt)，描述畫面細節、光影、人物動作。風格爲：Modern Anime Style, Cinematic Lighting, High Quality。\n")
	b.WriteString("   - text: 該場景對應的中文對白或旁白（不超過50字）。\n")
	b.WriteString("   - speaker: 說話的人（如：葉凡、平平、旁白、反派）。\n")
	b.WriteString("3. 輸出爲 JSON 格式。\n")
	return b.String()
}

var outlineSchema = &gemini.Schema{
	Type: gemini.TypeArray,
	Items: &gemini.Schema{
		Type: gemini.TypeObject,
		Properties: map[string]*gemini.Schema{
			"chapterNumber": {Type: gemini.TypeInteger},
			"title":         {Type: gemini.TypeString},
			"summary":       {Type: gemini.TypeString},
		},
		Required: []string{"chapterNumber", "title", "summary"},
	},
}

var scriptSchema = &gemini.Schema{
	Type: gemini.TypeArray,
	Items: &gemini.Schema{
		Type: gemini.TypeObject,
		Properties: map[string]*gemini.Schema{
			"id":          {Type: gemini.TypeInteger},
			"description": {Type: gemini.TypeString, Description: "A detailed visual prompt for an AI image generator describing the scene."},
			"text":        {Type: gemini.TypeString, Description: "The narration or dialogue line."},
			"speaker":     {Type: gemini.TypeString, Description: "Name of the speaker or 'Narrator'."},
		},
		Required: []string{"id", "description", "text", "speaker"},
	},
}
