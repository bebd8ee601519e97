package enrichment

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ignite/leadflow/internal/domain"
)

// touchFrameworks gives each touch in the sequence its framing. Every touch
// ends with the calendar link.
var touchFrameworks = map[int]string{
	1: "Cold intro. Mention something specific about their store. Introduce curated sourcing. End with calendar link.",
	2: "Follow-up. Quick and casual. Reference touch 1. Maybe mention a specific brand relevant to them. Calendar link.",
	3: "Value add. Share a brief insight about their niche/market. Position meeting as next step. Calendar link.",
	4: "Social proof. Reference types of retailers you work with (not names). Quick meeting push. Calendar link.",
	5: "Last touch. Respectful. Quick note that you're available if timing ever changes. Calendar link. No breakup energy.",
}

const generatorSystem = `You are writing emails for a wholesale distributor of premium brands
at deep discounts. Your persona is a High Authority Executive:
- Calm, strategic, direct, confident
- Short paragraphs, no fluff, no filler
- Under 120 words for cold emails, under 80 for replies
- Never sound desperate or salesy
- Never reveal cost basis, margins, full catalog, pricing details
- Always position as curated opportunity, not mass sales pitch
- Every objection response ends with the calendar link
- Reference specific store details from research signals when possible
- Store references must be traceable to research data or omitted`

// Generator drafts outbound touches. With a completer it prompts for a
// strict JSON message and falls back to the offline draft if the output
// cannot be parsed after one repair; with a nil completer every draft is the
// offline deterministic one.
type Generator struct {
	completer   Completer
	bookingLink string
	meeting     string
}

// NewGenerator builds a generator. completer may be nil. meeting is the
// human-readable booking window rendered into prompts.
func NewGenerator(completer Completer, bookingLink, meeting string) *Generator {
	return &Generator{completer: completer, bookingLink: bookingLink, meeting: meeting}
}

const maxBrandsPerMessage = 3

// GenerateMessage drafts one touch. The returned message still goes through
// the content linter; generation never bypasses it.
func (g *Generator) GenerateMessage(ctx context.Context, req MessageRequest) (Message, error) {
	brands := req.BrandNames
	if len(brands) > maxBrandsPerMessage {
		brands = brands[:maxBrandsPerMessage]
	}

	if g.completer == nil {
		return g.offline(req), nil
	}

	excerpt := req.SiteExcerpt
	if len(excerpt) > 500 {
		excerpt = excerpt[:500]
	}
	framework, ok := touchFrameworks[req.TouchNumber]
	if !ok {
		framework = touchFrameworks[1]
	}
	brandList := "none specific"
	if len(brands) > 0 {
		brandList = strings.Join(brands, ", ")
	}

	prompt := fmt.Sprintf(`%s

Write a cold email for this lead:
Company: %s
Niche: %s
Leverage angle: %s
Touch: %d of %d
Framework: %s
Brands to mention (max %d): %s
Store categories: %s
Store excerpt (for specific references): %s
Calendar link: %s
Meeting: %s

Return ONLY a JSON object:
{"subject": "email subject line", "body": "email body text"}

Rules:
- Under 120 words for body
- Short paragraphs
- End with calendar link
- No cost/margin/pricing details
- No full catalog mentions
- Reference something specific from their store if possible`,
		generatorSystem,
		req.CompanyName,
		req.Niche,
		req.Angle,
		req.TouchNumber,
		domain.SequenceLength,
		framework,
		maxBrandsPerMessage,
		brandList,
		strings.Join(req.Categories, ", "),
		excerpt,
		g.bookingLink,
		g.meeting,
	)

	raw, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		log.Printf("[Generator] Completion failed for touch %d: %v, using offline draft", req.TouchNumber, err)
		return g.offline(req), nil
	}

	var msg Message
	if err := parseStrictJSON(raw, &msg); err != nil {
		log.Printf("[Generator] Invalid JSON for touch %d, attempting repair", req.TouchNumber)
		repair := fmt.Sprintf(
			"Your previous output was not valid JSON:\n%s\n\nReturn ONLY valid JSON: {\"subject\":\"...\",\"body\":\"...\"}",
			raw,
		)
		raw, err = g.completer.Complete(ctx, repair)
		if err != nil || parseStrictJSON(raw, &msg) != nil {
			log.Printf("[Generator] Repair failed for touch %d, using offline draft", req.TouchNumber)
			return g.offline(req), nil
		}
	}
	if msg.Subject == "" || msg.Body == "" {
		return g.offline(req), nil
	}
	return msg, nil
}

// offline is the deterministic no-completer draft. It is lint-clean and
// ends with the booking link.
func (g *Generator) offline(req MessageRequest) Message {
	niche := req.Niche
	if niche == "" {
		niche = "retail"
	}
	return Message{
		Subject: fmt.Sprintf("%s - quick brand sourcing idea", req.CompanyName),
		Body: fmt.Sprintf(
			"Hi,\n\nNoticed your %s catalog. We source premium brands at competitive terms.\n\nWorth a quick chat?\n\n%s",
			niche, g.bookingLink,
		),
	}
}
