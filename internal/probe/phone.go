package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
)

// ErrInvalidPhone is returned for input that is not a phone number.
var ErrInvalidPhone = errors.New("invalid phone number")

// phoneRegionOption names the Target option that gives the default region
// for numbers written without a country code.
const phoneRegionOption = "region"

var phoneTypeNames = map[phonenumbers.PhoneNumberType]string{
	phonenumbers.FIXED_LINE:           "fixed_line",
	phonenumbers.MOBILE:               "mobile",
	phonenumbers.FIXED_LINE_OR_MOBILE: "fixed_line_or_mobile",
	phonenumbers.TOLL_FREE:            "toll_free",
	phonenumbers.PREMIUM_RATE:         "premium_rate",
	phonenumbers.SHARED_COST:          "shared_cost",
	phonenumbers.VOIP:                 "voip",
	phonenumbers.PERSONAL_NUMBER:      "personal_number",
	phonenumbers.PAGER:                "pager",
	phonenumbers.UAN:                  "uan",
	phonenumbers.VOICEMAIL:            "voicemail",
}

// PhoneNormalizer parses a phone number into E.164 form and resolves its
// country.
type PhoneNormalizer struct{}

// NewPhoneNormalizer creates the Phone Normalizer probe.
func NewPhoneNormalizer() *PhoneNormalizer { return &PhoneNormalizer{} }

// Name implements module.Module.
func (*PhoneNormalizer) Name() string { return NamePhoneNormalizer }

// Description implements module.Module.
func (*PhoneNormalizer) Description() string {
	return "Normalizes a phone number to E.164 and identifies its country"
}

// InputTypes implements module.Module.
func (*PhoneNormalizer) InputTypes() []string { return []string{model.InputPhone} }

// Run implements module.Module.
func (*PhoneNormalizer) Run(ctx context.Context, target model.Target, progress module.ProgressFunc) ([]model.Entity, []model.Relation, error) {
	report := reporter(progress)
	report(0, 2)

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	raw := strings.TrimSpace(target.Phone)
	region := strings.ToUpper(target.Option(phoneRegionOption))
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q: %w", ErrInvalidPhone, raw, err)
	}
	report(1, 2)

	e164 := phonenumbers.Format(num, phonenumbers.E164)
	international := phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
	numberType, ok := phoneTypeNames[phonenumbers.GetNumberType(num)]
	if !ok {
		numberType = "unknown"
	}

	phone := model.NewEntity(model.EntityPhone, e164).
		WithLabel(international).
		WithAttribute("original", raw).
		WithAttribute("international", international).
		WithAttribute("national", phonenumbers.Format(num, phonenumbers.NATIONAL)).
		WithAttribute("country_calling_code", int(num.GetCountryCode())).
		WithAttribute("valid", phonenumbers.IsValidNumber(num)).
		WithAttribute("possible", phonenumbers.IsPossibleNumber(num)).
		WithAttribute("number_type", numberType)

	entities := []model.Entity{phone}
	var relations []model.Relation

	if code := phonenumbers.GetRegionCodeForNumber(num); code != "" && code != "ZZ" {
		country := model.NewEntity(model.EntityCountry, code).
			WithLabel(countryName(code)).
			WithAttribute("source", "phone_prefix")
		entities = append(entities, country)
		relations = append(relations, model.NewRelation(phone, country, "located_in"))
	}

	report(2, 2)
	return entities, relations, nil
}

// countryName returns the English name of an ISO 3166 region code, or the
// code itself when it is unknown.
func countryName(code string) string {
	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return code
}
