package analysis

import (
	"fmt"
	"strings"
)

// Profile is what a user submits about themselves.
type Profile struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Strengths string `json:"strengths"`
	Hobbies   string `json:"hobbies"`
}

const resultShape = `{
  "horizon": <years until the current role is automated, number>,
  "skill_risks": [
    {
      "skill_name": "<skill>",
      "category": "<category>",
      "probability": <chance of AI replacement, integer 0-100>,
      "time_horizon": <years until replacement, positive number>,
      "justification": "<reasoning, in the voice of a dystopian chronicle>"
    }
  ],
  "career_cards": [
    {
      "card_index": <0, 1 or 2>,
      "combo_formula": "[%s] + [strength] + [hobby] = [new role]",
      "rationale": "<why this role fits>",
      "roadmap": [
        { "step": "<what to do>", "duration": "<how long>" }
      ]
    }
  ]
}`

// BuildPrompt embeds the profile and the exact result shape the parser reads.
func BuildPrompt(p Profile) string {
	var b strings.Builder
	b.WriteString("Analyze how long this person's current job will survive automation and suggest career pivots.\n\n")
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	fmt.Fprintf(&b, "Current role: %s\n", p.Role)
	fmt.Fprintf(&b, "Strengths: %s\n", p.Strengths)
	fmt.Fprintf(&b, "Hobbies: %s\n\n", p.Hobbies)
	b.WriteString("Respond in this JSON format:\n")
	fmt.Fprintf(&b, resultShape, p.Role)
	b.WriteString("\n\nProduce 3 to 5 skill_risks and exactly 3 career_cards with card_index 0, 1 and 2.\n")
	b.WriteString("Respond with JSON only. Do not include any other text.")
	return b.String()
}
