package extract

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"

	"github.com/sells-group/contact-enricher/internal/model"
)

var whitespace = regexp.MustCompile(`\s+`)

// Labels of the report rows, lower-cased. The report is in Russian.
const (
	labelFullName   = "фио"
	labelLastName   = "фамилия"
	labelFirstName  = "имя"
	labelMiddleName = "отчество"
	labelPhone      = "телефон"
	labelBirthday   = "дата рождения"
)

type cardRow struct {
	label string
	value string
}

// NormalizeName collapses whitespace and case-folds a full name so that
// "  Иванов  ИВАН " and "иванов иван" compare equal.
func NormalizeName(name string) string {
	collapsed := whitespace.ReplaceAllString(strings.TrimSpace(name), " ")
	return cases.Fold().String(collapsed)
}

// FromFile parses the report at path. Any failure yields empty data; the
// report is best-effort enrichment and never fails a query.
func FromFile(target, path string) model.ContactData {
	f, err := os.Open(path)
	if err != nil {
		zap.L().Debug("extract: open document", zap.String("path", path), zap.Error(err))
		return model.ContactData{}
	}
	defer f.Close() //nolint:errcheck

	d, err := FromDocument(target, f)
	if err != nil {
		zap.L().Debug("extract: parse document", zap.String("path", path), zap.Error(err))
		return model.ContactData{}
	}
	return d
}

// FromDocument extracts contacts from every card in the report whose person
// name contains target. Phones and emails accumulate across matching cards;
// only the first birthday is kept.
func FromDocument(target string, r io.Reader) (model.ContactData, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return model.ContactData{}, eris.Wrap(err, "extract: read html")
	}

	want := NormalizeName(target)
	var d model.ContactData

	doc.Find("div.card").Each(func(_ int, card *goquery.Selection) {
		rows := cardRows(card)
		if !strings.Contains(NormalizeName(cardName(rows)), want) {
			return
		}

		for _, row := range rows {
			switch {
			case strings.Contains(row.label, labelPhone):
				d.Phones = append(d.Phones, Phones(row.value)...)
			case isEmailLabel(row.label):
				d.Emails = append(d.Emails, Emails(row.value)...)
			case strings.Contains(row.label, labelBirthday) && d.Birthday == "":
				d.Birthday = row.value
			}
		}

		// Some reports list addresses outside a labelled row.
		d.Emails = append(d.Emails, Emails(nodeText(card))...)
	})

	d.Phones = Unique(d.Phones)
	d.Emails = Unique(d.Emails)
	return d, nil
}

func cardRows(card *goquery.Selection) []cardRow {
	var rows []cardRow
	card.Find("div.row").Each(func(_ int, row *goquery.Selection) {
		left := row.Find("div.row_left").First()
		right := row.Find("div.row_right").First()
		if left.Length() == 0 || right.Length() == 0 {
			return
		}
		rows = append(rows, cardRow{
			label: strings.ToLower(strings.TrimSpace(left.Text())),
			value: strings.TrimSpace(right.Text()),
		})
	})
	return rows
}

// cardName prefers an explicit full-name row and falls back to joining the
// last, first and middle name rows.
func cardName(rows []cardRow) string {
	var full, last, first, middle string
	for _, row := range rows {
		switch {
		case strings.Contains(row.label, labelFullName):
			full = row.value
		case strings.Contains(row.label, labelLastName):
			last = row.value
		case strings.Contains(row.label, labelFirstName) && !strings.Contains(row.label, labelMiddleName):
			first = row.value
		case strings.Contains(row.label, labelMiddleName):
			middle = row.value
		}
	}
	if full != "" {
		return full
	}
	return strings.TrimSpace(strings.Join([]string{last, first, middle}, " "))
}

func isEmailLabel(label string) bool {
	return strings.Contains(label, "email") ||
		strings.Contains(label, "e-mail") ||
		(strings.Contains(label, "электрон") && strings.Contains(label, "почт"))
}

// nodeText joins all text nodes under sel with spaces so adjacent elements
// do not run together.
func nodeText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}
