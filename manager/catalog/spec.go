package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/netdata/assets/pkg/model"

	"github.com/ilyam8/hashstructure"
	"gopkg.in/yaml.v2"
)

const configKey = "config"

type (
	// Spec is a parsed assets document for one environment.
	Spec struct {
		Types    []TypeGroups
		Settings Settings
	}
	TypeGroups struct {
		Type   model.AssetType
		Groups []Group
	}
	Group struct {
		Key     string
		Members []string
	}
	Settings struct {
		Combine bool `yaml:"combine_asset_groups"`
		Minify  bool `yaml:"minify"`
		Cache   bool `yaml:"cache"`
	}
	// settingsBlock is one env block, absent keys keep the previous value.
	settingsBlock struct {
		Combine *bool `yaml:"combine_asset_groups"`
		Minify  *bool `yaml:"minify"`
		Cache   *bool `yaml:"cache"`
	}
)

func DefaultSettings() Settings {
	return Settings{Combine: true, Minify: true, Cache: true}
}

func (s Spec) Hash() uint64 { hash, _ := hashstructure.Hash(s, nil); return hash }

// Groups returns the groups declared for a type, in document order.
func (s Spec) Groups(typ model.AssetType) []Group {
	var groups []Group
	for _, tg := range s.Types {
		if tg.Type == typ {
			groups = append(groups, tg.Groups...)
		}
	}
	return groups
}

type (
	UnknownConfigKeyError struct {
		Env string
		Key string
	}
	FormatError struct {
		Path   string
		Reason string
	}
)

func (e UnknownConfigKeyError) Error() string {
	return fmt.Sprintf("unknown configuration key '%s' in environment '%s'", e.Key, e.Env)
}

func (e FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed assets document: %s", e.Reason)
	}
	return fmt.Sprintf("malformed assets document at '%s': %s", e.Path, e.Reason)
}

var envSep = regexp.MustCompile(`\s*,\s*`)

// Parse reads an assets document. The top level maps an asset type to a list
// of single entry maps, group key to member list. The optional "config"
// section maps comma separated environment names to settings; every block
// naming env is applied in document order over the defaults.
func Parse(data []byte, env string) (Spec, error) {
	spec := Spec{Settings: DefaultSettings()}

	var doc yaml.MapSlice
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Spec{}, FormatError{Reason: err.Error()}
	}

	for _, item := range doc {
		key, ok := item.Key.(string)
		if !ok {
			return Spec{}, FormatError{Reason: fmt.Sprintf("top level key %v is not a string", item.Key)}
		}
		if key == configKey {
			if err := applyConfig(&spec.Settings, item.Value, env); err != nil {
				return Spec{}, err
			}
			continue
		}

		typ, err := model.ParseAssetType(key)
		if err != nil {
			return Spec{}, err
		}
		groups, err := parseGroups(key, item.Value)
		if err != nil {
			return Spec{}, err
		}
		spec.Types = append(spec.Types, TypeGroups{Type: typ, Groups: groups})
	}
	return spec, nil
}

func parseGroups(path string, value interface{}) ([]Group, error) {
	if value == nil {
		return nil, nil
	}
	items, ok := value.([]interface{})
	if !ok {
		return nil, FormatError{Path: path, Reason: "expected a list of groups"}
	}

	groups := make([]Group, 0, len(items))
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		entry, ok := item.(yaml.MapSlice)
		if !ok || len(entry) != 1 {
			return nil, FormatError{Path: itemPath, Reason: "expected a single entry map of group key to members"}
		}
		key, ok := scalar(entry[0].Key)
		if !ok || key == "" {
			return nil, FormatError{Path: itemPath, Reason: "group key must be a non empty scalar"}
		}
		members, err := parseMembers(itemPath+"."+key, entry[0].Value)
		if err != nil {
			return nil, err
		}
		groups = append(groups, Group{Key: key, Members: members})
	}
	return groups, nil
}

func parseMembers(path string, value interface{}) ([]string, error) {
	items, ok := value.([]interface{})
	if !ok || len(items) == 0 {
		return nil, FormatError{Path: path, Reason: "expected a non empty list of members"}
	}
	members := make([]string, 0, len(items))
	for i, item := range items {
		name, ok := scalar(item)
		if !ok || name == "" {
			return nil, FormatError{Path: fmt.Sprintf("%s[%d]", path, i), Reason: "member must be a non empty scalar"}
		}
		members = append(members, name)
	}
	return members, nil
}

func applyConfig(settings *Settings, value interface{}, env string) error {
	if value == nil {
		return nil
	}
	envs, ok := value.(yaml.MapSlice)
	if !ok {
		return FormatError{Path: configKey, Reason: "expected a map of environments"}
	}

	for _, item := range envs {
		names, ok := scalar(item.Key)
		if !ok {
			return FormatError{Path: configKey, Reason: fmt.Sprintf("environment key %v is not a scalar", item.Key)}
		}
		block, err := parseSettingsBlock(configKey+"."+names, names, item.Value)
		if err != nil {
			return err
		}
		if matchesEnv(names, env) {
			block.applyTo(settings)
		}
	}
	return nil
}

// parseSettingsBlock validates every block, not only the ones for the current
// env, so a typo fails in all environments.
func parseSettingsBlock(path, env string, value interface{}) (settingsBlock, error) {
	var block settingsBlock
	if value == nil {
		return block, nil
	}
	entries, ok := value.(yaml.MapSlice)
	if !ok {
		return block, FormatError{Path: path, Reason: "expected a map of settings"}
	}
	for _, e := range entries {
		key, _ := scalar(e.Key)
		switch key {
		case "combine_asset_groups", "minify", "cache":
		default:
			return block, UnknownConfigKeyError{Env: env, Key: fmt.Sprint(e.Key)}
		}
	}

	bs, err := yaml.Marshal(entries)
	if err != nil {
		return block, FormatError{Path: path, Reason: err.Error()}
	}
	if err := yaml.UnmarshalStrict(bs, &block); err != nil {
		return block, FormatError{Path: path, Reason: err.Error()}
	}
	return block, nil
}

func (b settingsBlock) applyTo(s *Settings) {
	if b.Combine != nil {
		s.Combine = *b.Combine
	}
	if b.Minify != nil {
		s.Minify = *b.Minify
	}
	if b.Cache != nil {
		s.Cache = *b.Cache
	}
}

func matchesEnv(names, env string) bool {
	for _, name := range envSep.Split(strings.TrimSpace(names), -1) {
		if name == env {
			return true
		}
	}
	return false
}

func scalar(v interface{}) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(v), true
	}
	return "", false
}
