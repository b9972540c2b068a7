package transcript

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"joke_contest/internal/domain"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// Markdown renders a contest stream as a document: one section per round
// followed by the closing commentary.
func Markdown(title string, records []domain.Record) string {
	var b strings.Builder
	if title == "" {
		title = "Joke contest"
	}
	fmt.Fprintf(&b, "# %s\n\n", escape(title))

	var rounds []int
	byRound := map[int]*row{}
	var summary string
	for _, rec := range records {
		switch rec.Kind {
		case domain.RecordSummary:
			summary = rec.Text()
			continue
		case domain.RecordGenerator, domain.RecordEvaluator:
		default:
			continue
		}
		r, ok := byRound[rec.Round]
		if !ok {
			r = &row{}
			byRound[rec.Round] = r
			rounds = append(rounds, rec.Round)
		}
		if rec.Kind == domain.RecordGenerator {
			r.joke = rec.Text()
		} else if rec.Evaluate != nil {
			r.score = fmt.Sprintf("%d/%d", rec.Evaluate.Score, domain.MaxScore)
			r.reason = rec.Evaluate.Reason
		}
	}

	for _, n := range rounds {
		r := byRound[n]
		fmt.Fprintf(&b, "## Round %d\n\n", n)
		fmt.Fprintf(&b, "%s\n\n", quote(r.joke))
		if r.score != "" {
			fmt.Fprintf(&b, "**Score:** %s\n\n%s\n\n", r.score, escape(r.reason))
		} else {
			b.WriteString("_not scored_\n\n")
		}
	}

	if len(rounds) > 0 {
		b.WriteString("## Scoreboard\n\n| Round | Score |\n| --- | --- |\n")
		for _, n := range rounds {
			score := byRound[n].score
			if score == "" {
				score = "-"
			}
			fmt.Fprintf(&b, "| %d | %s |\n", n, score)
		}
		b.WriteString("\n")
	}

	if summary != "" {
		fmt.Fprintf(&b, "## Commentary\n\n%s\n", escape(summary))
	}
	return b.String()
}

// HTML converts the Markdown transcript into a standalone HTML page. Raw
// HTML in model output is not passed through.
func HTML(w io.Writer, title string, records []domain.Record) error {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(title, records)), &body); err != nil {
		return fmt.Errorf("render transcript: %w", err)
	}
	if title == "" {
		title = "Joke contest"
	}
	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(title), body.String())
	return err
}

type row struct {
	joke   string
	score  string
	reason string
}

var mdEscaper = strings.NewReplacer("|", `\|`, "#", `\#`, "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return mdEscaper.Replace(strings.TrimSpace(s))
}

func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = "> " + escape(line)
	}
	return strings.Join(lines, "\n")
}
