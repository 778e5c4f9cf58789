// Package env composes the environment handed to package manager commands.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

type Env struct {
	Var  Var // overrides applied on top of the base
	base Var
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS snapshots the current process environment as the base.
func (e *Env) FromOS() *Env {
	e.base = Parse(os.Environ())
	return e
}

// WithBase uses kv ("K=V" pairs) as the base instead of the process
// environment.
func (e *Env) WithBase(kv []string) *Env {
	e.base = Parse(kv)
	return e
}

func (e *Env) WithSet(k, v string) *Env {
	if e.Var == nil {
		e.Var = make(Var)
	}
	if k != "" {
		e.Var[k] = v
	}
	return e
}

func (e *Env) Unset(k string) {
	delete(e.Var, k)
}

// Merge composes base, then e.Var, then extra ("K=V" pairs). ${VAR}
// references are expanded once against the composed map; unknown names are
// left as written. The result is sorted by key.
func (e *Env) Merge(extra []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(e.Var)+len(extra))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.Var {
		if k != "" {
			m[k] = v
		}
	}
	for k, v := range Parse(extra) {
		m[k] = v
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

// Parse turns "K=V" pairs into a map. Entries without '=' or with an empty
// key are dropped; later entries win.
func Parse(kv []string) Var {
	m := make(Var, len(kv))
	for _, s := range kv {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		name := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := m[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
}
