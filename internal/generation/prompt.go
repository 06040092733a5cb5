package generation

import (
	"fmt"
	"strings"

	"github.com/lamontai/lamontai/pkg/models"
)

// BuildArticlePrompt assembles the system and user prompts for one article
// from the user's onboarding profile and generation settings.
func BuildArticlePrompt(profile *models.BusinessProfile, settings *models.Settings, competitors []models.Competitor, keyword, title string) (system, user string) {
	var sys strings.Builder
	sys.WriteString("You are an expert SEO content writer. ")
	sys.WriteString("Write well-structured HTML articles using h2/h3 headings, short paragraphs and natural keyword placement. ")
	if settings != nil {
		fmt.Fprintf(&sys, "Write in a %s tone, in language %q, around %d words. ", settings.Tone, settings.Language, settings.WordCount)
	}
	sys.WriteString("Return only the article HTML, no commentary.")

	var usr strings.Builder
	fmt.Fprintf(&usr, "Primary keyword: %s\n", keyword)
	if title != "" {
		fmt.Fprintf(&usr, "Title: %s\n", title)
	}
	if profile != nil {
		if profile.Description != "" {
			fmt.Fprintf(&usr, "\nAbout the business:\n%s\n", profile.Description)
		}
		if profile.TargetAudience != "" {
			fmt.Fprintf(&usr, "\nTarget audience:\n%s\n", profile.TargetAudience)
		}
	}
	if len(competitors) > 0 {
		usr.WriteString("\nCompetitors to differentiate from:\n")
		for _, c := range competitors {
			fmt.Fprintf(&usr, "- %s (%s)\n", c.Name, c.Domain)
		}
	}
	usr.WriteString("\nWrite the article now.")

	return sys.String(), usr.String()
}
