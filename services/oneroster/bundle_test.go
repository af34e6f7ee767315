package onerostersvc

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipBundle(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestParseBundle(t *testing.T) {
	data := zipBundle(t, map[string]string{
		"orgs.csv": "sourcedId,status,name,type\n" +
			"org1,active,Springfield Elementary,school\n" +
			"org2,tobedeleted,Closed Annex,school\n",
		"academicSessions.csv": "sourcedId,status,title,type,startDate,endDate,parentSourcedId\n" +
			"sy1,active,2026-2027,schoolYear,2026-08-15,2027-06-10,\n" +
			"t1,active,Fall Term,term,2026-08-15,2026-12-18,sy1\n",
		// providers sometimes nest files under a directory
		"export/users.csv": "sourcedId,status,username,givenName,familyName,email,role\n" +
			"u1,active,lisa,Lisa,Simpson,lisa@acme.edu,student\n",
		"classes.csv": "sourcedId,status,title,classCode,courseSourcedId,schoolSourcedId,termSourcedIds\n" +
			"c1,active,Biology,BIO-2,crs1,org1,\"t1, t2\"\n",
		"enrollments.csv": "sourcedId,status,role,userSourcedId,classSourcedId\n" +
			"e1,active,student,u1,c1\n",
	})

	b, err := ParseBundle(data)
	require.NoError(t, err)
	assert.Empty(t, b.Warnings)

	require.Len(t, b.Orgs, 2)
	assert.Equal(t, "Springfield Elementary", b.Orgs[0].Name)
	// deleted rows survive parsing; the connector decides what to do with them
	assert.Equal(t, "tobedeleted", b.Orgs[1].Status)

	require.Len(t, b.AcademicSessions, 2)
	assert.Equal(t, "sy1", b.AcademicSessions[1].Parent.SourcedID)

	require.Len(t, b.Users, 1)
	assert.Equal(t, "lisa@acme.edu", b.Users[0].Email)
	assert.Equal(t, "student", b.Users[0].Role)

	require.Len(t, b.Classes, 1)
	cls := b.Classes[0]
	assert.Equal(t, "crs1", cls.Course.SourcedID)
	assert.Equal(t, "org1", cls.School.SourcedID)
	require.Len(t, cls.Terms, 2)
	assert.Equal(t, "t1", cls.Terms[0].SourcedID)
	assert.Equal(t, "t2", cls.Terms[1].SourcedID)

	require.Len(t, b.Enrollments, 1)
	assert.Equal(t, "u1", b.Enrollments[0].User.SourcedID)
	assert.Equal(t, "c1", b.Enrollments[0].Class.SourcedID)
}

func TestParseBundle_missingFileAndColumn(t *testing.T) {
	data := zipBundle(t, map[string]string{
		"orgs.csv": "sourcedId,status,name,type\norg1,active,Springfield Elementary,school\n",
		// no email column
		"users.csv": "sourcedId,status,username,givenName,familyName,role\n" +
			"u1,active,lisa,Lisa,Simpson,student\n",
	})

	b, err := ParseBundle(data)
	require.NoError(t, err)

	require.Len(t, b.Users, 1)
	assert.Empty(t, b.Users[0].Email)
	assert.Nil(t, b.Enrollments)

	assert.Contains(t, b.Warnings, "bundle file users.csv missing column email")
	assert.Contains(t, b.Warnings, "bundle file enrollments.csv missing, skipping")
	assert.Contains(t, b.Warnings, "bundle file academicSessions.csv missing, skipping")
	assert.Contains(t, b.Warnings, "bundle file classes.csv missing, skipping")
}

func TestParseBundle_corruptZip(t *testing.T) {
	_, err := ParseBundle([]byte("this is not a zip archive"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening bundle zip")
}

func TestParseBundle_toleratesBrokenRows(t *testing.T) {
	data := zipBundle(t, map[string]string{
		// row 2 has a bare quote, row 3 is short, row 4 is fine
		"orgs.csv": "sourcedId,status,name,type\n" +
			"org1,bro\"ken,Bad Row,school\n" +
			"short,active\n" +
			"org2,active,Springfield Elementary,school\n",
	})

	b, err := ParseBundle(data)
	require.NoError(t, err)

	// the bad row is dropped, the short row keeps what it has
	require.Len(t, b.Orgs, 2)
	assert.Equal(t, "short", b.Orgs[0].SourcedID)
	assert.Empty(t, b.Orgs[0].Name)
	assert.Equal(t, "org2", b.Orgs[1].SourcedID)
	assert.Equal(t, "school", b.Orgs[1].Type)

	assert.Contains(t, b.Warnings, "bundle file orgs.csv line 2 unreadable, skipping")
}

func TestParseBundle_emptyFile(t *testing.T) {
	data := zipBundle(t, map[string]string{"orgs.csv": ""})

	b, err := ParseBundle(data)
	require.NoError(t, err)
	assert.Nil(t, b.Orgs)
	assert.Contains(t, b.Warnings, "bundle file orgs.csv is empty, skipping")
}
