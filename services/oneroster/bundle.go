package onerostersvc

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

// Bundle is a parsed OneRoster CSV zip export. Files absent from the archive
// leave their slice nil; Warnings records everything that was tolerated.
type Bundle struct {
	Orgs             []Org
	AcademicSessions []AcademicSession
	Users            []User
	Classes          []Class
	Enrollments      []Enrollment

	Warnings []string
}

// required column sets per bundle file. Extra columns are ignored.
var bundleColumns = map[string][]string{
	"orgs.csv":             {"sourcedId", "status", "name", "type"},
	"academicSessions.csv": {"sourcedId", "status", "title", "type", "startDate", "endDate", "parentSourcedId"},
	"users.csv":            {"sourcedId", "status", "username", "givenName", "familyName", "email", "role"},
	"classes.csv":          {"sourcedId", "status", "title", "classCode", "courseSourcedId", "schoolSourcedId", "termSourcedIds"},
	"enrollments.csv":      {"sourcedId", "status", "role", "userSourcedId", "classSourcedId"},
}

// DownloadBundle fetches a bundle zip over HTTP and parses it. The URL is
// subject to the same address denylist as the REST client.
func DownloadBundle(ctx context.Context, bundleURL string) (*Bundle, error) {
	if err := ValidateBaseURL(bundleURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bundleURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building bundle request")
	}
	client := &http.Client{Timeout: core.Conf.Sync.RequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "downloading bundle")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("oneroster: bundle download returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading bundle body")
	}
	return ParseBundle(data)
}

// ParseBundle reads a OneRoster CSV zip from memory. A missing file or a file
// with missing required columns is tolerated with a warning; a corrupt archive
// is not.
func ParseBundle(data []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "opening bundle zip")
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		// providers sometimes nest files under a directory
		files[strings.ToLower(pathBase(f.Name))] = f
	}

	b := &Bundle{}
	for name := range bundleColumns {
		f, ok := files[strings.ToLower(name)]
		if !ok {
			b.warnf("bundle file %s missing, skipping", name)
			continue
		}
		rows, err := readCSVFile(f, name, b)
		if err != nil {
			return nil, err
		}
		b.load(name, rows)
	}
	return b, nil
}

func (b *Bundle) warnf(format string, args ...interface{}) {
	b.Warnings = append(b.Warnings, errors.Errorf(format, args...).Error())
}

func pathBase(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// readCSVFile decodes one bundle member into column-keyed rows. Unknown
// columns are dropped; missing required columns yield empty values and one
// warning per file. Short or broken rows are skipped individually.
func readCSVFile(f *zip.File, name string, b *Bundle) ([]map[string]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", name)
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			b.warnf("bundle file %s is empty, skipping", name)
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading %s header", name)
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	for _, col := range bundleColumns[name] {
		if _, ok := idx[col]; !ok {
			b.warnf("bundle file %s missing column %s", name, col)
		}
	}

	var rows []map[string]string
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			b.warnf("bundle file %s line %d unreadable, skipping", name, line)
			continue
		}
		row := make(map[string]string, len(idx))
		for col, i := range idx {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (b *Bundle) load(name string, rows []map[string]string) {
	switch name {
	case "orgs.csv":
		for _, row := range rows {
			b.Orgs = append(b.Orgs, Org{
				SourcedID: row["sourcedId"],
				Status:    row["status"],
				Name:      row["name"],
				Type:      row["type"],
			})
		}
	case "academicSessions.csv":
		for _, row := range rows {
			b.AcademicSessions = append(b.AcademicSessions, AcademicSession{
				SourcedID: row["sourcedId"],
				Status:    row["status"],
				Title:     row["title"],
				Type:      row["type"],
				StartDate: row["startDate"],
				EndDate:   row["endDate"],
				Parent:    GUIDRef{SourcedID: row["parentSourcedId"]},
			})
		}
	case "users.csv":
		for _, row := range rows {
			b.Users = append(b.Users, User{
				SourcedID:  row["sourcedId"],
				Status:     row["status"],
				Username:   row["username"],
				GivenName:  row["givenName"],
				FamilyName: row["familyName"],
				Email:      row["email"],
				Role:       row["role"],
			})
		}
	case "classes.csv":
		for _, row := range rows {
			cls := Class{
				SourcedID: row["sourcedId"],
				Status:    row["status"],
				Title:     row["title"],
				ClassCode: row["classCode"],
				Course:    GUIDRef{SourcedID: row["courseSourcedId"]},
				School:    GUIDRef{SourcedID: row["schoolSourcedId"]},
			}
			for _, termID := range strings.Split(row["termSourcedIds"], ",") {
				if termID = strings.TrimSpace(termID); termID != "" {
					cls.Terms = append(cls.Terms, GUIDRef{SourcedID: termID})
				}
			}
			b.Classes = append(b.Classes, cls)
		}
	case "enrollments.csv":
		for _, row := range rows {
			b.Enrollments = append(b.Enrollments, Enrollment{
				SourcedID: row["sourcedId"],
				Status:    row["status"],
				Role:      row["role"],
				User:      GUIDRef{SourcedID: row["userSourcedId"]},
				Class:     GUIDRef{SourcedID: row["classSourcedId"]},
			})
		}
	}
}
