package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/legalpub/internal/model"
)

// IdentityKey returns the client identity key of a party: the tax document
// with punctuation removed when present, otherwise the NFC-normalized name.
// Two different people sharing a name and lacking documents collapse into
// one client.
func IdentityKey(p model.Party) string {
	if doc := normalizeDocument(p.Document); doc != "" {
		return doc
	}
	return normalizeName(p.Name)
}

// Reconcile derives the deduplicated clients of procs and their links.
// A (client, process) pair is linked once; the first role seen wins.
func Reconcile(procs []model.Process) ([]model.Client, []model.ClientLink) {
	var clients []model.Client
	index := make(map[string]int)
	linked := make(map[[2]string]bool)
	var links []model.ClientLink

	add := func(party model.Party, number string, role model.Role) {
		key := IdentityKey(party)
		if key == "" {
			return
		}
		i, ok := index[key]
		if !ok {
			pt := party.PersonType
			if pt == "" {
				pt = model.PersonNatural
			}
			clients = append(clients, model.Client{
				Key:        key,
				Name:       normalizeName(party.Name),
				Document:   normalizeDocument(party.Document),
				PersonType: pt,
				Processes:  []model.ClientProcess{},
			})
			i = len(clients) - 1
			index[key] = i
		}

		pair := [2]string{key, number}
		if linked[pair] {
			return
		}
		linked[pair] = true
		links = append(links, model.ClientLink{ClientKey: key, ProcessNumber: number, Role: role})
		clients[i].Processes = append(clients[i].Processes, model.ClientProcess{ProcessNumber: number, Role: role})
	}

	for _, p := range procs {
		for _, party := range p.Parties.Plaintiffs {
			add(party, p.Number, model.RolePlaintiff)
		}
		for _, party := range p.Parties.Defendants {
			add(party, p.Number, model.RoleDefendant)
		}
	}
	if clients == nil {
		clients = []model.Client{}
	}
	return clients, links
}

func normalizeDocument(doc string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, doc)
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}
