package pipeline

import (
	"strings"
	"unicode/utf8"

	"github.com/sells-group/legalpub/internal/model"
)

// CourtNotInformed is used when neither the publication nor the lawyer
// carries a court or jurisdiction.
const CourtNotInformed = "not informed"

const titleExcerptRunes = 80

// Materialize builds one process per distinct process number. The first
// publication seen for a number is its representative and numbers keep
// their first-seen order. Publications without a number are skipped and
// counted.
func Materialize(pubs []model.Publication, lawyer model.Lawyer) ([]model.Process, int) {
	seen := make(map[string]bool, len(pubs))
	procs := make([]model.Process, 0, len(pubs))
	skipped := 0

	for _, pub := range pubs {
		number := strings.TrimSpace(pub.ProcessNumber)
		if number == "" {
			skipped++
			continue
		}
		if seen[number] {
			continue
		}
		seen[number] = true

		procs = append(procs, model.Process{
			Number: number,
			Title:  deriveTitle(pub.Content, number),
			Court:  firstNonEmpty(pub.Court, lawyer.UF, CourtNotInformed),
			Status: model.ProcessStatusActive,
			Parties: model.Parties{
				Plaintiffs: []model.Party{},
				Defendants: []model.Party{},
				Attorneys:  []model.Attorney{lawyer.Attorney()},
			},
			EnrichmentStatus: model.EnrichmentPending,
			Provenance:       model.Provenance{Publication: pub.Raw},
		})
	}
	return procs, skipped
}

// deriveTitle returns a whitespace-collapsed excerpt of content, or a
// generic label when content is blank.
func deriveTitle(content, number string) string {
	excerpt := strings.Join(strings.Fields(content), " ")
	if excerpt == "" {
		return "Process " + number
	}
	if utf8.RuneCountInString(excerpt) <= titleExcerptRunes {
		return excerpt
	}
	runes := []rune(excerpt)
	return strings.TrimSpace(string(runes[:titleExcerptRunes])) + "..."
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
