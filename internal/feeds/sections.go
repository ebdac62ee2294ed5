package feeds

import (
	"fmt"
	"strings"

	"reliefmap/internal/csvtable"
	"reliefmap/internal/logger"
)

// AllTypes is the catch-all filter for typed sections.
const AllTypes = "全部"

var cell = csvtable.Cell

// FAQ is a question with its answer and an optional reference link.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	LinkText string `json:"link_text,omitempty"`
	LinkURL  string `json:"link_url,omitempty"`
}

// DecodeFAQ reads question, answer, link text, link url.
func DecodeFAQ(rows [][]string) []FAQ {
	out := []FAQ{}
	for _, r := range skipHeader(rows) {
		q, a := cell(r, 0), cell(r, 1)
		if q == "" || a == "" {
			continue
		}
		switch q {
		case "問題", "question", "Question":
			continue
		}
		out = append(out, FAQ{Question: q, Answer: a, LinkText: cell(r, 2), LinkURL: cell(r, 3)})
	}
	return out
}

// Announcement is a dated news item.
type Announcement struct {
	Date    string `json:"date"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// DecodeAnnouncements reads date, title, content; all three are required.
func DecodeAnnouncements(rows [][]string) []Announcement {
	out := []Announcement{}
	for _, r := range skipHeader(rows) {
		a := Announcement{Date: cell(r, 0), Title: cell(r, 1), Content: cell(r, 2)}
		if a.Date == "" || a.Title == "" || a.Content == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// FriendlyLink is a partner organisation with its social links.
type FriendlyLink struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
	Instagram   string `json:"instagram,omitempty"`
	Facebook    string `json:"facebook,omitempty"`
	Website     string `json:"website,omitempty"`
}

// DecodeFriendlyLinks reads title, image, description, instagram, facebook, website.
func DecodeFriendlyLinks(rows [][]string) []FriendlyLink {
	out := []FriendlyLink{}
	for i, r := range skipHeader(rows) {
		title := cell(r, 0)
		if title == "" {
			continue
		}
		out = append(out, FriendlyLink{
			ID:          fmt.Sprintf("unit-%d", i),
			Title:       title,
			Image:       cell(r, 1),
			Description: cell(r, 2),
			Instagram:   cell(r, 3),
			Facebook:    cell(r, 4),
			Website:     cell(r, 5),
		})
	}
	return out
}

// RepairVendor is a contractor listed under a repair trade.
type RepairVendor struct {
	ID      string `json:"repair_id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
}

// HouseRepair is the vendor list with the trades in sheet order,
// AllTypes first.
type HouseRepair struct {
	Types   []string       `json:"types"`
	Vendors []RepairVendor `json:"vendors"`
}

// Filter returns vendors of one trade; AllTypes returns every vendor.
func (h HouseRepair) Filter(typ string) []RepairVendor {
	if typ == "" || typ == AllTypes {
		return h.Vendors
	}
	var out []RepairVendor
	for _, v := range h.Vendors {
		if v.Type == typ {
			out = append(out, v)
		}
	}
	return out
}

// DecodeHouseRepair reads rows of [id, first, second, third]. A row with
// only first set opens a trade section; a row with all three set is a
// vendor (name, contact, phone) in the current section. Repeated
// type+name+contact rows are dropped; the first one wins.
func DecodeHouseRepair(rows [][]string) HouseRepair {
	out := HouseRepair{Types: []string{AllTypes}, Vendors: []RepairVendor{}}
	seen := map[string]int{}
	current := ""
	for _, r := range rows {
		id, first, second, third := cell(r, 0), cell(r, 1), cell(r, 2), cell(r, 3)
		switch {
		case first == "":
			continue
		case second == "" && third == "":
			current = first
			out.Types = append(out.Types, current)
		case second != "" && third != "":
			if current == "" || first == "廠商名稱" {
				continue
			}
			key := current + "\x00" + first + "\x00" + second
			if idx, dup := seen[key]; dup {
				logger.L().Info("feed_duplicate_dropped",
					"sheet", HouseRepairName, "type", current, "name", first,
					"kept_phone", out.Vendors[idx].Phone, "dropped_phone", third)
				continue
			}
			seen[key] = len(out.Vendors)
			out.Vendors = append(out.Vendors, RepairVendor{ID: id, Type: current, Name: first, Contact: second, Phone: third})
		}
	}
	return out
}

// SupportProgram is a relief subsidy or loan programme.
type SupportProgram struct {
	ID           string `json:"support_id"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Target       string `json:"target"`
	Detail       string `json:"support_detail"`
	Deadline     string `json:"deadline"`
	ApplyPlace   string `json:"apply_place"`
	ApplyAddress string `json:"apply_address"`
	OfficeHours  string `json:"office_hours"`
	Phone        string `json:"phone"`
	ApplyDetail  string `json:"apply_detail"`
	Source       string `json:"source"`
}

// Phones splits the phone cell into individual numbers.
func (p SupportProgram) Phones() []string {
	var out []string
	for _, n := range strings.FieldsFunc(p.Phone, func(r rune) bool { return r == '\n' || r == '、' || r == '/' }) {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// SupportInfo is the programme list with the audience types present.
type SupportInfo struct {
	Types    []string         `json:"types"`
	Programs []SupportProgram `json:"programs"`
}

// Filter returns programmes of one audience type; AllTypes returns all.
func (s SupportInfo) Filter(typ string) []SupportProgram {
	if typ == "" || typ == AllTypes {
		return s.Programs
	}
	var out []SupportProgram
	for _, p := range s.Programs {
		if p.Type == typ {
			out = append(out, p)
		}
	}
	return out
}

var supportTypes = []string{AllTypes, "一般個人", "一般家戶", "弱勢扶助", "農民/養殖戶", "商家與企業", "外縣市補助"}

// DecodeSupportInfo reads [id, tag, name, url, target, detail, deadline,
// place, address, hours, phone, apply detail, source]. Rows without a tag
// and the "Tag" header are skipped; repeated type+name+url rows are
// dropped, first one wins.
func DecodeSupportInfo(rows [][]string) SupportInfo {
	out := SupportInfo{Programs: []SupportProgram{}}
	present := map[string]bool{}
	seen := map[string]int{}
	for _, r := range rows {
		tag := cell(r, 1)
		if tag == "" || tag == "Tag" {
			continue
		}
		p := SupportProgram{
			ID: cell(r, 0), Type: tag, Name: cell(r, 2), URL: cell(r, 3),
			Target: cell(r, 4), Detail: cell(r, 5), Deadline: cell(r, 6),
			ApplyPlace: cell(r, 7), ApplyAddress: cell(r, 8), OfficeHours: cell(r, 9),
			Phone: cell(r, 10), ApplyDetail: cell(r, 11), Source: cell(r, 12),
		}
		key := p.Type + "\x00" + p.Name + "\x00" + p.URL
		if idx, dup := seen[key]; dup {
			logger.L().Info("feed_duplicate_dropped",
				"sheet", SupportInfoName, "type", p.Type, "name", p.Name,
				"kept_phone", out.Programs[idx].Phone, "dropped_phone", p.Phone)
			continue
		}
		seen[key] = len(out.Programs)
		present[p.Type] = true
		out.Programs = append(out.Programs, p)
	}
	for _, t := range supportTypes {
		if t == AllTypes || present[t] {
			out.Types = append(out.Types, t)
		}
	}
	return out
}

func skipHeader(rows [][]string) [][]string {
	if len(rows) == 0 {
		return rows
	}
	return rows[1:]
}
