package engine

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/models"
)

// seedEntry is the shape the text provider is prompted to emit for
// each character.
type seedEntry struct {
	Name    string `json:"name"`
	Logline string `json:"logline"`
}

// ParseSeedSet decodes a seed-set result locator into character seeds.
// The locator is either a data URL carrying the provider's text output
// or the raw text itself. The text must contain a JSON array of
// {name, logline} objects; surrounding prose and code fences are
// tolerated. Each seed gets a freshly assigned character id.
func ParseSeedSet(locator string) ([]models.CharacterSeed, error) {
	text, err := decodeLocatorText(locator)
	if err != nil {
		return nil, err
	}

	raw, err := extractJSONArray(text)
	if err != nil {
		return nil, err
	}

	var entries []seedEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("%w: seed set is not a valid JSON array: %v", models.ErrResultFormat, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: seed set is empty", models.ErrResultFormat)
	}

	seeds := make([]models.CharacterSeed, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.Name) == "" {
			return nil, fmt.Errorf("%w: seed entry missing name", models.ErrResultFormat)
		}
		seeds = append(seeds, models.CharacterSeed{
			CharacterID: common.NewCharacterID(),
			Name:        strings.TrimSpace(entry.Name),
			Logline:     strings.TrimSpace(entry.Logline),
		})
	}
	return seeds, nil
}

// decodeLocatorText returns the text payload of a locator, decoding
// base64 data URLs and passing plain text through.
func decodeLocatorText(locator string) (string, error) {
	if !strings.HasPrefix(locator, "data:") {
		return locator, nil
	}
	_, payload, found := strings.Cut(locator, ",")
	if !found {
		return "", fmt.Errorf("%w: malformed data locator", models.ErrResultFormat)
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: data locator payload is not base64: %v", models.ErrResultFormat, err)
	}
	return string(decoded), nil
}

// extractJSONArray finds the outermost JSON array in free-form text.
func extractJSONArray(text string) (string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON array found in seed set output", models.ErrResultFormat)
	}
	return text[start : end+1], nil
}
