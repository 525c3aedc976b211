package catalog

import (
	"github.com/netdata/assets/pipeline/asset"
	"github.com/netdata/assets/pkg/model"
)

// Catalog indexes the references built from a Spec by group key and by name.
// Both indexes point at the same reference instances.
type Catalog struct {
	spec     Spec
	byGroup  map[model.AssetType]map[string][]*asset.Reference
	byName   map[model.AssetType]map[string]*asset.Reference
	groupSeq map[model.AssetType][]string
	refs     []*asset.Reference
}

// Build creates the references of a spec. When groups are combined each group
// becomes one reference named after its key, and member names are not
// resolvable on their own. Otherwise every member becomes its own reference.
// A name seen twice reuses the first reference. A group key declared twice
// keeps the last declaration.
func Build(spec Spec, pipe asset.Assembler, versionToken string) *Catalog {
	c := &Catalog{
		spec:     spec,
		byGroup:  make(map[model.AssetType]map[string][]*asset.Reference),
		byName:   make(map[model.AssetType]map[string]*asset.Reference),
		groupSeq: make(map[model.AssetType][]string),
	}
	opts := asset.Options{Minify: spec.Settings.Minify, VersionToken: versionToken}

	for _, tg := range spec.Types {
		for _, g := range tg.Groups {
			var refs []*asset.Reference
			if spec.Settings.Combine {
				refs = appendRef(refs, c.reference(tg.Type, g.Key, g.Members, pipe, opts))
			} else {
				for _, member := range g.Members {
					refs = appendRef(refs, c.reference(tg.Type, member, nil, pipe, opts))
				}
			}
			c.setGroup(tg.Type, g.Key, refs)
		}
	}
	return c
}

func (c *Catalog) reference(typ model.AssetType, name string, members []string, pipe asset.Assembler, opts asset.Options) *asset.Reference {
	names, ok := c.byName[typ]
	if !ok {
		names = make(map[string]*asset.Reference)
		c.byName[typ] = names
	}
	if ref, ok := names[name]; ok {
		return ref
	}
	ref := asset.New(typ, name, members, pipe, opts)
	names[name] = ref
	c.refs = append(c.refs, ref)
	return ref
}

func (c *Catalog) setGroup(typ model.AssetType, key string, refs []*asset.Reference) {
	groups, ok := c.byGroup[typ]
	if !ok {
		groups = make(map[string][]*asset.Reference)
		c.byGroup[typ] = groups
	}
	if _, ok := groups[key]; !ok {
		c.groupSeq[typ] = append(c.groupSeq[typ], key)
	}
	groups[key] = refs
}

func appendRef(refs []*asset.Reference, ref *asset.Reference) []*asset.Reference {
	for _, r := range refs {
		if r == ref {
			return refs
		}
	}
	return append(refs, ref)
}

// Empty is the catalog of a missing assets document: every lookup fails.
func Empty() *Catalog {
	return Build(Spec{Settings: DefaultSettings()}, nil, "")
}

// ReferencesForGroup returns the references of a group in declaration order,
// nil if the group is unknown.
func (c *Catalog) ReferencesForGroup(typ model.AssetType, key string) []*asset.Reference {
	refs := c.byGroup[typ][key]
	if len(refs) == 0 {
		return nil
	}
	return append([]*asset.Reference(nil), refs...)
}

func (c *Catalog) ReferenceForName(typ model.AssetType, name string) (*asset.Reference, bool) {
	ref, ok := c.byName[typ][name]
	return ref, ok
}

// GroupKeys returns the group keys of a type in declaration order.
func (c *Catalog) GroupKeys(typ model.AssetType) []string {
	return append([]string(nil), c.groupSeq[typ]...)
}

// References returns every distinct reference in creation order.
func (c *Catalog) References() []*asset.Reference {
	return append([]*asset.Reference(nil), c.refs...)
}

func (c *Catalog) Settings() Settings { return c.spec.Settings }
