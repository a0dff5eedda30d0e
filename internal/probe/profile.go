package probe

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
)

// platform is a site with predictable profile URLs.
type platform struct {
	key     string
	title   string
	pattern string
}

var platforms = []platform{
	{key: "github", title: "GitHub", pattern: "https://github.com/%s"},
	{key: "twitter", title: "Twitter/X", pattern: "https://x.com/%s"},
	{key: "instagram", title: "Instagram", pattern: "https://www.instagram.com/%s"},
	{key: "facebook", title: "Facebook", pattern: "https://www.facebook.com/%s"},
	{key: "linkedin", title: "LinkedIn", pattern: "https://www.linkedin.com/in/%s"},
	{key: "reddit", title: "Reddit", pattern: "https://www.reddit.com/user/%s"},
	{key: "tiktok", title: "TikTok", pattern: "https://www.tiktok.com/@%s"},
	{key: "youtube", title: "YouTube", pattern: "https://www.youtube.com/@%s"},
	{key: "telegram", title: "Telegram", pattern: "https://t.me/%s"},
	{key: "pinterest", title: "Pinterest", pattern: "https://www.pinterest.com/%s"},
	{key: "snapchat", title: "Snapchat", pattern: "https://www.snapchat.com/add/%s"},
	{key: "keybase", title: "Keybase", pattern: "https://keybase.io/%s"},
	{key: "medium", title: "Medium", pattern: "https://medium.com/@%s"},
	{key: "patreon", title: "Patreon", pattern: "https://www.patreon.com/%s"},
}

var usernameSeparators = regexp.MustCompile(`[._\-]+`)

// ProfileURLBuilder derives candidate profile URLs for a username.
// It does not contact the platforms; the URLs are leads to verify.
type ProfileURLBuilder struct{}

// NewProfileURLBuilder creates the Profile URL Builder probe.
func NewProfileURLBuilder() *ProfileURLBuilder {
	return &ProfileURLBuilder{}
}

// Name implements module.Module.
func (*ProfileURLBuilder) Name() string { return NameProfileURLs }

// Description implements module.Module.
func (*ProfileURLBuilder) Description() string {
	return "Builds candidate social profile URLs for a username"
}

// InputTypes implements module.Module.
func (*ProfileURLBuilder) InputTypes() []string { return []string{model.InputUsername} }

// Run implements module.Module.
//
// When the target names a platform only that platform is used. The number
// of candidates is capped by the target limit.
func (*ProfileURLBuilder) Run(ctx context.Context, target model.Target, progress module.ProgressFunc) ([]model.Entity, []model.Relation, error) {
	report := reporter(progress)

	username := strings.TrimPrefix(strings.TrimSpace(target.Username), "@")
	if username == "" || strings.ContainsAny(username, " /?#") {
		return nil, nil, fmt.Errorf("invalid username %q", target.Username)
	}

	selected := selectPlatforms(target.Platform, target.EffectiveLimit())
	report(0, len(selected))

	user := model.NewEntity(model.EntityUsername, username).WithAttribute("source", "input")
	// A Caser is stateful and must not be shared between runs.
	titler := cases.Title(language.English)
	person := model.NewEntity(model.EntityPerson, username).
		WithLabel(titler.String(strings.TrimSpace(usernameSeparators.ReplaceAllString(username, " ")))).
		WithAttribute("source", "username")

	entities := []model.Entity{user, person}
	relations := []model.Relation{model.NewRelation(person, user, "uses_username")}

	for i, p := range selected {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		profile := model.NewEntity(model.EntityURL, fmt.Sprintf(p.pattern, url.PathEscape(username))).
			WithLabel(p.title + ": " + username).
			WithAttribute("platform", p.key).
			WithAttribute("verified", false)
		entities = append(entities, profile)
		relations = append(relations, model.NewRelation(user, profile, "has_profile"))
		report(i+1, len(selected))
	}

	return entities, relations, nil
}

// selectPlatforms returns the platform named by want, or the first limit
// platforms when want is empty.
func selectPlatforms(want string, limit int) []platform {
	want = strings.ToLower(strings.TrimSpace(want))
	if want != "" {
		for _, p := range platforms {
			if p.key == want || strings.ToLower(p.title) == want {
				return []platform{p}
			}
		}
		return nil
	}
	if limit > 0 && limit < len(platforms) {
		return platforms[:limit]
	}
	return platforms
}
