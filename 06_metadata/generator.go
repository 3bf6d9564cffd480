package metadata

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"eto-fortune-pipeline/config"
	"eto-fortune-pipeline/types"
)

// Hook titles rotated per (animal, date) so the same animal gets a fresh
// but day-stable title each run.
var titleHooks = []string{
	"🔥 %s年さん今日は絶好調！",
	"💕 %s年の恋愛運が急上昇！",
	"💰 %s年に金運の波が来る！",
	"⚠️ %s年さん要注意！でも大丈夫",
	"✨ %s年に奇跡のチャンス到来",
	"🌟 %s年おめでとう！大吉の日",
	"😱 %s年さん見ないと後悔！",
}

// Generator builds viral-leaning Japanese upload metadata without any
// external service call: the artifact already carries everything needed.
type Generator struct {
	cfg *config.Config
}

// New creates a metadata Generator.
func New(cfg *config.Config) *Generator {
	return &Generator{cfg: cfg}
}

// ForArtifact produces upload metadata for a finished video. The title hook
// is selected by a hash of (animal, date) so repeated runs on the same day
// stay consistent.
func (g *Generator) ForArtifact(artifact *types.FinishedArtifact, now time.Time) *types.UploadMetadata {
	kanji := types.EtoKanji[artifact.Animal]
	if kanji == "" {
		kanji = artifact.Animal
	}
	dateStr := now.Format("2006-01-02")

	title := g.buildTitle(artifact, kanji, dateStr)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s年の%sの運勢をお届けします。\n", kanji, scopeLabel(artifact.Scope)))
	sb.WriteString(artifact.Title + "\n\n")
	sb.WriteString("毎日あなたの干支の運勢を配信中！チャンネル登録お願いします🙏\n")
	sb.WriteString("#占い #干支 #運勢")

	tags := []string{"占い", "干支", "運勢", "開運", kanji + "年", string(artifact.MoodTag)}
	if artifact.Scope == types.ScopeDaily {
		tags = append(tags, "今日の運勢")
	}

	return &types.UploadMetadata{
		Title:       title,
		Description: sb.String(),
		Tags:        tags,
		CategoryID:  g.cfg.Upload.CategoryID,
		Visibility:  g.cfg.Upload.Visibility,
	}
}

func (g *Generator) buildTitle(artifact *types.FinishedArtifact, kanji, dateStr string) string {
	var title string
	switch artifact.Scope {
	case types.ScopeMonthly:
		title = fmt.Sprintf("📅 %s年 月間運勢 大公開！", kanji)
	case types.ScopeYearly:
		title = fmt.Sprintf("🏆 %s年の年間運勢が凄すぎる！", kanji)
	default:
		hook := titleHooks[hookIndex(artifact.Animal, dateStr)]
		title = fmt.Sprintf(hook, kanji) + " 🔮"
	}
	title += " #shorts"

	// YouTube truncates past 100 chars; stay well under.
	if runes := []rune(title); len(runes) > 80 {
		title = string(runes[:80])
	}
	return title
}

func hookIndex(animal, dateStr string) int {
	h := fnv.New32a()
	h.Write([]byte(animal + dateStr))
	return int(h.Sum32() % uint32(len(titleHooks)))
}

func scopeLabel(scope types.Scope) string {
	switch scope {
	case types.ScopeMonthly:
		return "今月"
	case types.ScopeYearly:
		return "今年"
	default:
		return "今日"
	}
}
