package untis

import (
	"regexp"
	"strconv"
	"strings"
	"subplan-backend/internal/plan"
	"subplan-backend/pkg/htmlutil"
	"time"

	"golang.org/x/net/html"
)

// GroupBlock is a run of rows under one group header. Rows that appear before the
// first header of a day section on a page are collected into a block without header, they
// continue whatever group the previous page ended with.
type GroupBlock struct {
	Header  bool
	Name    string
	Struck  bool
	Entries []plan.Entry
}

// DaySection is everything a page contains for one day title.
type DaySection struct {
	Date       time.Time
	Name       string
	DateString string
	Week       string
	News       []string
	Info       []plan.Info
	Blocks     []GroupBlock
}

// PageResult is the parsed content of a single page, it is not shared with anything else
// while the page is parsed.
type PageResult struct {
	Page     int
	Next     int
	HasNext  bool
	Sections []DaySection
	// IgnoredRows counts table rows seen before any day title.
	IgnoredRows int
}

type parserState int

const (
	stateOutside parserState = iota
	stateTitle
	stateInfoTable
	stateSubstitutionTable
)

type cell struct {
	text   string
	struck bool
	header bool
}

// PageParser is an io.Writer that parses the markup of one page as it is written.
type PageParser struct {
	dialect Dialect
	cutoff  time.Time
	loc     *time.Location
	onNext  func(next int)

	tokenizer *htmlutil.StreamTokenizer
	result    PageResult

	state      parserState
	divDepth   int
	tableDepth int
	title      strings.Builder

	inRow       bool
	row         []cell
	inCell      bool
	cellText    strings.Builder
	cellStruck  bool
	cellHeader  bool
	cellIsTh    bool
	rowHasTh    bool
	strikeDepth int
}

// NewPageParser creates a parser for one page. Day titles dated before cutoff stop the
// parser with a StaleDataError. onNext, if set, is called as soon as the continuation
// marker is seen.
func NewPageParser(dialect Dialect, cutoff time.Time, page int, loc *time.Location, onNext func(next int)) *PageParser {
	p := &PageParser{
		dialect: dialect,
		cutoff:  cutoff,
		loc:     loc,
		onNext:  onNext,
		result:  PageResult{Page: page},
	}
	p.tokenizer = htmlutil.NewStreamTokenizer(p.handle)
	return p
}

func (p *PageParser) Write(chunk []byte) (int, error) {
	return p.tokenizer.Write(chunk)
}

func (p *PageParser) Close() error {
	return p.tokenizer.Close()
}

// Result returns what was parsed, it is complete after Close or a failed Write.
func (p *PageParser) Result() PageResult {
	return p.result
}

var continuationRegex = regexp.MustCompile(`(?i)subst_(\d+)\.html?`)

func (p *PageParser) handle(tok htmlutil.Token) error {
	switch tok.Type {
	case html.StartTagToken, html.SelfClosingTagToken:
		if tok.Data == "meta" {
			p.handleMeta(tok.Attr)
			return nil
		}
		return p.handleStart(tok)
	case html.EndTagToken:
		return p.handleEnd(tok)
	case html.TextToken:
		switch {
		case p.state == stateTitle:
			p.title.WriteString(tok.Data)
		case p.inCell:
			p.cellText.WriteString(tok.Data)
			if p.strikeDepth > 0 && strings.TrimSpace(tok.Data) != "" {
				p.cellStruck = true
			}
		}
	}
	return nil
}

func (p *PageParser) handleMeta(attrs []html.Attribute) {
	equiv, _ := htmlutil.Attr(attrs, "http-equiv")
	if !strings.EqualFold(equiv, "refresh") {
		return
	}
	content, _ := htmlutil.Attr(attrs, "content")
	match := continuationRegex.FindStringSubmatch(content)
	if match == nil {
		return
	}
	next, err := strconv.Atoi(match[1])
	if err != nil {
		return
	}
	p.result.Next = next
	p.result.HasNext = true
	if p.onNext != nil {
		p.onNext(next)
	}
}

func (p *PageParser) handleStart(tok htmlutil.Token) error {
	switch p.state {
	case stateOutside:
		switch {
		case tok.Data == "div" && htmlutil.HasClass(tok.Attr, "mon_title"):
			p.state = stateTitle
			p.divDepth = 1
			p.title.Reset()
		case tok.Data == "table" && htmlutil.HasClass(tok.Attr, "mon_list"):
			p.state = stateSubstitutionTable
			p.tableDepth = 1
		case tok.Data == "table" && htmlutil.HasClass(tok.Attr, "info"):
			p.state = stateInfoTable
			p.tableDepth = 1
		}
	case stateTitle:
		if tok.Data == "div" {
			p.divDepth++
		}
	case stateInfoTable, stateSubstitutionTable:
		p.handleTableStart(tok)
	}
	return nil
}

func (p *PageParser) handleTableStart(tok htmlutil.Token) {
	switch tok.Data {
	case "table":
		p.tableDepth++
	case "tr":
		if p.tableDepth != 1 {
			return
		}
		p.finishRow()
		p.inRow = true
	case "td", "th":
		if p.tableDepth != 1 || !p.inRow {
			return
		}
		p.finishCell()
		p.inCell = true
		p.cellText.Reset()
		p.cellStruck = false
		p.cellIsTh = tok.Data == "th"
		p.cellHeader = htmlutil.HasClass(tok.Attr, "inline_header")
		p.strikeDepth = 0
	case "s", "strike", "del":
		if p.inCell {
			p.strikeDepth++
		}
	case "br":
		if p.inCell {
			p.cellText.WriteString(" ")
		}
	}
}

func (p *PageParser) handleEnd(tok htmlutil.Token) error {
	switch p.state {
	case stateTitle:
		if tok.Data != "div" {
			return nil
		}
		p.divDepth--
		if p.divDepth > 0 {
			return nil
		}
		p.state = stateOutside
		return p.startDay(htmlutil.NormalizeText(p.title.String()))
	case stateInfoTable, stateSubstitutionTable:
		switch tok.Data {
		case "table":
			p.tableDepth--
			if p.tableDepth > 0 {
				return nil
			}
			p.finishRow()
			p.state = stateOutside
		case "tr":
			if p.tableDepth == 1 {
				p.finishRow()
			}
		case "td", "th":
			if p.tableDepth == 1 {
				p.finishCell()
			}
		case "s", "strike", "del":
			if p.strikeDepth > 0 {
				p.strikeDepth--
			}
		}
	}
	return nil
}

var titleRegex = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})\s*([^,(]*)(?:,\s*([^(]*))?`)

func (p *PageParser) startDay(title string) error {
	match := titleRegex.FindStringSubmatch(title)
	if match == nil {
		return &MalformedTitleError{Page: p.result.Page, Title: title}
	}
	day, _ := strconv.Atoi(match[1])
	month, _ := strconv.Atoi(match[2])
	year, _ := strconv.Atoi(match[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return &MalformedTitleError{Page: p.result.Page, Title: title}
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, p.loc)
	if date.Day() != day {
		return &MalformedTitleError{Page: p.result.Page, Title: title}
	}

	if date.Before(p.cutoff) {
		return &StaleDataError{Page: p.result.Page, Date: date, Cutoff: p.cutoff}
	}

	p.result.Sections = append(p.result.Sections, DaySection{
		Date:       date,
		Name:       strings.TrimSpace(match[4]),
		DateString: match[1] + "." + match[2] + "." + match[3],
		Week:       strings.TrimSpace(match[5]),
	})
	return nil
}

func (p *PageParser) finishCell() {
	if !p.inCell {
		return
	}
	p.inCell = false
	if p.cellIsTh {
		p.rowHasTh = true
	}
	p.row = append(p.row, cell{
		text:   htmlutil.NormalizeText(p.cellText.String()),
		struck: p.cellStruck,
		header: p.cellHeader,
	})
}

func (p *PageParser) finishRow() {
	if !p.inRow {
		return
	}
	p.finishCell()
	row := p.row
	hasTh := p.rowHasTh
	p.inRow = false
	p.row = nil
	p.rowHasTh = false

	if hasTh || len(row) == 0 {
		return
	}
	if len(p.result.Sections) == 0 {
		p.result.IgnoredRows++
		return
	}
	section := &p.result.Sections[len(p.result.Sections)-1]

	switch p.state {
	case stateInfoTable:
		p.infoRow(section, row)
	case stateSubstitutionTable:
		p.substitutionRow(section, row)
	}
}

func (p *PageParser) infoRow(section *DaySection, row []cell) {
	switch len(row) {
	case 1:
		if row[0].text != "" {
			section.News = append(section.News, row[0].text)
		}
	case 2:
		if row[0].text != "" || row[1].text != "" {
			section.Info = append(section.Info, plan.Info{Label: row[0].text, Text: row[1].text})
		}
	}
}

func (p *PageParser) substitutionRow(section *DaySection, row []cell) {
	if len(row) == 1 && row[0].header {
		section.Blocks = append(section.Blocks, GroupBlock{
			Header: true,
			Name:   row[0].text,
			Struck: row[0].struck,
		})
		return
	}

	fields := map[plan.Field]string{}
	var struck plan.FieldSet
	empty := true
	for i, c := range row {
		if i >= len(p.dialect.Columns) {
			break
		}
		field := p.dialect.Columns[i]
		fields[field] = c.text
		if c.text != "" {
			empty = false
		}
		if p.dialect.TrackFieldStrikes && c.struck {
			struck = struck.With(field)
		}
	}
	if empty {
		return
	}

	if len(section.Blocks) == 0 {
		section.Blocks = append(section.Blocks, GroupBlock{})
	}
	block := &section.Blocks[len(section.Blocks)-1]
	block.Entries = append(block.Entries, plan.NewEntry(fields, struck))
}
