// Package courts holds the allow-list of courts eligible for OAB capture.
package courts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
)

// DefaultSigla is used when a caller does not pick a court.
const DefaultSigla = "TJBA"

// Builtin returns the courts known to the capture pipeline.
func Builtin() []capture.Court {
	return []capture.Court{
		{
			Sigla:   "TRF1",
			Nome:    "Tribunal Regional Federal da 1ª Região",
			UF:      "DF",
			Esfera:  "federal",
			Sistema: "PJE",
		},
		{
			Sigla:   "TRT5",
			Nome:    "Tribunal Regional do Trabalho da 5ª Região",
			UF:      "BA",
			Esfera:  "trabalhista",
			Sistema: "PJE",
		},
		{
			Sigla:           "TJBA",
			Nome:            "Tribunal de Justiça da Bahia",
			UF:              "BA",
			Esfera:          "estadual",
			Sistema:         "ESAJ",
			URLBase:         "https://www5.tjba.jus.br",
			ScrapingEnabled: true,
		},
		{
			Sigla:           "TJSP",
			Nome:            "Tribunal de Justiça de São Paulo",
			UF:              "SP",
			Esfera:          "estadual",
			Sistema:         "ESAJ",
			URLBase:         "https://www.tjsp.jus.br",
			ScrapingEnabled: true,
		},
	}
}

// Directory implements capture.CourtDirectory over a fixed list. Only courts
// with scraping enabled are eligible.
type Directory struct {
	courts       map[string]capture.Court
	defaultSigla string
}

var _ capture.CourtDirectory = (*Directory)(nil)

// New builds a Directory. An empty list falls back to Builtin.
func New(list []capture.Court, defaultSigla string) (*Directory, error) {
	if len(list) == 0 {
		list = Builtin()
	}
	if strings.TrimSpace(defaultSigla) == "" {
		defaultSigla = DefaultSigla
	}
	d := &Directory{
		courts:       make(map[string]capture.Court, len(list)),
		defaultSigla: strings.ToUpper(strings.TrimSpace(defaultSigla)),
	}
	for _, c := range list {
		key := strings.ToUpper(strings.TrimSpace(c.Sigla))
		if key == "" {
			return nil, fmt.Errorf("court sigla is required")
		}
		c.Sigla = key
		if !c.ScrapingEnabled {
			continue
		}
		d.courts[key] = c
	}
	if _, ok := d.courts[d.defaultSigla]; !ok {
		return nil, fmt.Errorf("default court %q is not enabled", d.defaultSigla)
	}
	return d, nil
}

// Lookup returns an enabled court by acronym, case-insensitively.
func (d *Directory) Lookup(sigla string) (capture.Court, bool) {
	c, ok := d.courts[strings.ToUpper(strings.TrimSpace(sigla))]
	return c, ok
}

// List returns the enabled courts sorted by name.
func (d *Directory) List() []capture.Court {
	out := make([]capture.Court, 0, len(d.courts))
	for _, c := range d.courts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Nome < out[j].Nome
	})
	return out
}

// Default returns the acronym used when none is given.
func (d *Directory) Default() string {
	return d.defaultSigla
}
