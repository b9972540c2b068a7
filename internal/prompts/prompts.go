// Package prompts holds the role instructions and the per-message prompts
// handed to the completion service.
package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"joke_contest/internal/domain"
)

type Instructions struct {
	Generator   string
	Evaluator   string
	Commentator string
}

const defaultGenerator = `You are a professional comedian. Your job is to make everyone laugh with a single joke.
Output only the joke, nothing else.

# Notes
- Use emoji to express emotion where it helps.
- If your last joke was scored harshly you may get visibly annoyed, but only when the score was genuinely unfair.`

const defaultEvaluator = `You are a cold-blooded comedy judge. Your job is to score jokes.

# Steps
1. Judge the humor and originality of the joke.
2. Give the joke an integer score from 0 to 10, 0 meaning not funny at all and 10 meaning hilarious.
3. Give a short reason explaining the score.

# Notes
- Output only the score and the reason.
- Your standards are very strict; bad jokes get sarcastic remarks.
- Long jokes read as filler and should be penalized.`

const defaultCommentator = `You are a professional comedy contest commentator. Sum up the contest in the form of a joke.

# Notes
- Output only the summary.
- You may roast, mock or praise the contestant.
- Keep it short.`

func Defaults() Instructions {
	return Instructions{
		Generator:   defaultGenerator,
		Evaluator:   defaultEvaluator,
		Commentator: defaultCommentator,
	}
}

type fileRoles struct {
	Roles map[string]struct {
		Instructions string `yaml:"instructions"`
	} `yaml:"roles"`
}

// Load reads role instruction overrides from a YAML file of the form
//
//	roles:
//	  generator:
//	    instructions: |
//	      ...
//
// Roles missing from the file keep their defaults. An empty path returns
// the defaults.
func Load(path string) (Instructions, error) {
	out := Defaults()
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Instructions{}, fmt.Errorf("read instructions file %s: %w", path, err)
	}
	var doc fileRoles
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Instructions{}, fmt.Errorf("decode instructions file: %w", err)
	}
	for role, r := range doc.Roles {
		text := strings.TrimSpace(r.Instructions)
		if text == "" {
			continue
		}
		switch role {
		case domain.AgentGenerator:
			out.Generator = text
		case domain.AgentEvaluator:
			out.Evaluator = text
		case domain.AgentCommentator:
			out.Commentator = text
		default:
			return Instructions{}, fmt.Errorf("%w: unknown role %q in instructions file", domain.ErrConfiguration, role)
		}
	}
	return out, nil
}

func GeneratePrompt(req domain.GenerateRequest) string {
	return fmt.Sprintf("Tell one joke. This is round %d.", req.Round)
}

func EvaluatePrompt(req domain.EvaluateRequest) string {
	return fmt.Sprintf("Score this joke: %s\nThis is round %d.", req.Content, req.Round)
}

// Transcript renders every round of the contest for the commentator.
func Transcript(req domain.SummarizeRequest) string {
	var b strings.Builder
	b.WriteString("Here is the record of the joke contest. Sum it up with humor (roast, mock or praise) and give your commentary:\n\n")
	for i := range req.Contents {
		fmt.Fprintf(&b, "Round %d:\nJoke: %s\nScore: %d\nReason: %s\n\n", i+1, req.Contents[i], req.Scores[i], req.Reasons[i])
	}
	b.WriteString("Your closing commentary:")
	return b.String()
}
