package envconfig

import "strings"

// AllowList is the fixed, ordered set of variable names a variant recognizes.
// Nothing outside it is ever read from the environment or the override file.
type AllowList struct {
	names []string
	index map[string]struct{}
}

// NewAllowList builds an allow-list, dropping blanks and duplicates while keeping order
func NewAllowList(names ...string) AllowList {
	list := AllowList{
		names: make([]string, 0, len(names)),
		index: make(map[string]struct{}, len(names)),
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := list.index[name]; ok {
			continue
		}
		list.index[name] = struct{}{}
		list.names = append(list.names, name)
	}
	return list
}

func (a AllowList) Contains(name string) bool {
	_, ok := a.index[name]
	return ok
}

// Names returns a copy of the names in declaration order
func (a AllowList) Names() []string {
	return append([]string(nil), a.names...)
}

func (a AllowList) Len() int {
	return len(a.names)
}
