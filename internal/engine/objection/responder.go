// Package objection renders reply drafts from the approved objection
// knowledge base. Drafts are never invented: a matched objection renders its
// approved template, an unmatched one gets the short generic response, and
// every draft ends with the booking link.
package objection

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/leadflow/internal/domain"
)

// maxBrandsInDraft caps the brand names substituted into a draft.
const maxBrandsInDraft = 3

// Response is a rendered reply draft.
type Response struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	TemplateID string `json:"template_id,omitempty"`
}

// Meeting holds the booking details rendered into calendar responses.
// Organizer is the sender organization named in the invite title.
type Meeting struct {
	Duration  string
	Days      string
	Hours     string
	Organizer string
}

// Responder renders objection-KB and interested-reply drafts with Liquid.
type Responder struct {
	engine      *liquid.Engine
	cache       sync.Map // map[string]*liquid.Template
	bookingLink string
	meeting     Meeting
}

// NewResponder builds a responder with the domain filters registered.
func NewResponder(bookingLink string, meeting Meeting) *Responder {
	r := &Responder{
		engine:      liquid.NewEngine(),
		bookingLink: bookingLink,
		meeting:     meeting,
	}
	r.registerFilters()
	return r
}

func (r *Responder) registerFilters() {
	// Fallback value: {{ company_name | default: "your store" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ name | capitalize }}
	r.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + s[1:]
	})
}

// MatchType scans a reply for the keyword patterns of the active KB
// templates and returns the objection type of the first template whose
// pattern appears. Empty string when nothing matches.
func MatchType(rawText string, templates []domain.ObjectionTemplate) string {
	lowered := strings.ToLower(rawText)
	for _, tpl := range templates {
		if !tpl.Active {
			continue
		}
		for _, kw := range tpl.PatternKeywords {
			if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
				return tpl.ObjectionType
			}
		}
	}
	return ""
}

// Handle renders the approved template for an objection type, or the generic
// short response when no active template covers it. The booking link is
// guaranteed to appear in the body.
func (r *Responder) Handle(objectionType string, templates []domain.ObjectionTemplate, companyName string, brandNames []string) Response {
	var tpl *domain.ObjectionTemplate
	if objectionType != "" {
		for i := range templates {
			if templates[i].ObjectionType == objectionType && templates[i].Active {
				tpl = &templates[i]
				break
			}
		}
	}

	if tpl == nil {
		log.Printf("[Objection] No template for objection type %q, using generic", objectionType)
		return r.generic(companyName)
	}

	ctx := map[string]interface{}{
		"company_name": companyName,
		"brand_names":  brandPhrase(brandNames),
		"booking_link": r.bookingLink,
	}

	body := r.render("body:"+tpl.ObjectionType+":"+tpl.Version, tpl.Body, ctx)
	subject := tpl.Subject
	if subject == "" {
		subject = fmt.Sprintf("Re: %s", companyName)
	} else {
		subject = r.render("subject:"+tpl.ObjectionType+":"+tpl.Version, subject, ctx)
	}

	if !strings.Contains(body, r.bookingLink) {
		body += "\n\n" + r.bookingLink
	}

	return Response{Subject: subject, Body: body, TemplateID: tpl.ObjectionType}
}

// Interested returns the canned calendar response for an interested reply.
func (r *Responder) Interested(companyName string) Response {
	organizer := r.meeting.Organizer
	if organizer == "" {
		organizer = "Leadflow"
	}
	return Response{
		Subject: fmt.Sprintf("Re: %s", companyName),
		Body: fmt.Sprintf(
			"Perfect.\n\nGrab a quick %s here:\n%s\n\n%s, %s works best.\n\nTitle: %s x %s - Sourcing Call",
			r.meeting.Duration, r.bookingLink, r.meeting.Days, r.meeting.Hours, companyName, organizer,
		),
	}
}

func (r *Responder) generic(companyName string) Response {
	return Response{
		Subject: fmt.Sprintf("Re: %s", companyName),
		Body: fmt.Sprintf(
			"Totally understand.\n\nHappy to share a few relevant lines that might fit, best way is a quick call so I can understand your needs.\n\n%s",
			r.bookingLink,
		),
	}
}

// render parses with caching and falls back to the raw template text on
// error, the same degradation production sends get.
func (r *Responder) render(cacheKey, templateStr string, ctx map[string]interface{}) string {
	if cached, ok := r.cache.Load(cacheKey); ok {
		out, err := cached.(*liquid.Template).RenderString(ctx)
		if err == nil {
			return out
		}
		log.Printf("[Objection] Render error: %v", err)
		return templateStr
	}

	tpl, err := r.engine.ParseString(templateStr)
	if err != nil {
		log.Printf("[Objection] Parse error: %v", err)
		return templateStr
	}
	r.cache.Store(cacheKey, tpl)

	out, err := tpl.RenderString(ctx)
	if err != nil {
		log.Printf("[Objection] Render error: %v", err)
		return templateStr
	}
	return out
}

func brandPhrase(brandNames []string) string {
	if len(brandNames) == 0 {
		return "relevant lines"
	}
	if len(brandNames) > maxBrandsInDraft {
		brandNames = brandNames[:maxBrandsInDraft]
	}
	return strings.Join(brandNames, ", ")
}
