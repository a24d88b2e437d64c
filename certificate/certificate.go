// Package certificate renders a stored result snapshot as a canonical text
// marksheet and signs it with a board key.
//
// A certificate is line oriented UTF-8 with LF endings:
//
//	-----BEGIN RESULT CERTIFICATE-----
//	RESULT
//	Result-ID: SSC_2024_1001
//	...
//
//	STUDENT
//	...
//
//	MARKS
//	english: English | 85/100 | A+ | 5.00
//
//	SIGNATURE
//	Hash-Alg: sha256
//	Public-Key: ed25519:...
//	Signature: ...
//	-----END RESULT CERTIFICATE-----
//
// The signature covers every byte from the preamble up to and including the
// blank line before SIGNATURE.
package certificate

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"xdao.co/resultledger/keys"
	"xdao.co/resultledger/snapshot"
)

const (
	Preamble  = "-----BEGIN RESULT CERTIFICATE-----"
	Postamble = "-----END RESULT CERTIFICATE-----"
)

var sectionOrder = []string{"RESULT", "STUDENT", "MARKS", "SIGNATURE"}

var ErrMalformed = errors.New("certificate: malformed")

type pair struct{ key, value string }

// Certificate is a parsed certificate.
type Certificate struct {
	Raw       []byte
	Sections  map[string][]pair
	HashAlg   string
	PublicKey string
	Signature string
}

func (c *Certificate) field(section, key string) string {
	for _, p := range c.Sections[section] {
		if p.key == key {
			return p.value
		}
	}
	return ""
}

func (c *Certificate) ResultID() string    { return c.field("RESULT", "Result-ID") }
func (c *Certificate) Fingerprint() string { return c.field("RESULT", "Fingerprint") }
func (c *Certificate) Signed() bool        { return c.Signature != "" }

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func orDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

// Render produces the unsigned certificate for s, naming the fingerprint the
// snapshot was stored under.
func Render(s snapshot.Snapshot, fingerprint string) ([]byte, error) {
	if s.ResultID == "" {
		return nil, fmt.Errorf("%w: snapshot has no result id", ErrMalformed)
	}
	if !s.Published {
		return nil, fmt.Errorf("certificate: result %s is not published", s.ResultID)
	}
	result := []pair{
		{"Result-ID", s.ResultID},
		{"Exam", s.ExamName},
		{"Session", s.Session},
		{"Group", s.Group},
		{"Board", s.Board.Name},
		{"Institution", s.Institution.Name},
		{"Total-Marks", num(s.TotalMarks)},
		{"GPA", s.GPA},
		{"Grade", s.Grade},
		{"Status", s.Status},
		{"Published-At", s.PublishedAt},
		{"Fingerprint", fingerprint},
	}
	student := []pair{
		{"Registration", s.Student.RegistrationNumber},
		{"Roll", s.AttemptKey},
		{"Name", s.Student.Name},
		{"Father", s.Student.FatherName},
		{"Mother", s.Student.MotherName},
		{"Date-Of-Birth", s.Student.DateOfBirth},
	}
	sorted := append([]snapshot.SubjectMark(nil), s.SubjectMarks...)
	snapshot.SortMarks(sorted)
	marks := make([]pair, 0, len(sorted))
	for _, m := range sorted {
		marks = append(marks, pair{m.SubjectID, fmt.Sprintf("%s | %s/%s | %s | %s",
			orDash(m.Name), num(m.MarksObtained), num(m.FullMarks), m.Grade, strconv.FormatFloat(m.GradePoint, 'f', 2, 64))})
	}

	var buf bytes.Buffer
	buf.WriteString(Preamble + "\n")
	for i, sec := range []struct {
		name  string
		pairs []pair
	}{{"RESULT", result}, {"STUDENT", student}, {"MARKS", marks}} {
		if i > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(sec.name + "\n")
		for _, p := range sec.pairs {
			if err := writePair(&buf, p.key, orDash(p.value)); err != nil {
				return nil, err
			}
		}
	}
	buf.WriteString(Postamble)
	return buf.Bytes(), nil
}

func writePair(buf *bytes.Buffer, key, value string) error {
	if key == "" || strings.ContainsAny(key, ": \n\r") {
		return fmt.Errorf("%w: bad key %q", ErrMalformed, key)
	}
	if strings.ContainsAny(value, "\n\r") {
		return fmt.Errorf("%w: value for %s spans lines", ErrMalformed, key)
	}
	buf.WriteString(key + ": " + value + "\n")
	return nil
}

// Sign appends a SIGNATURE section to an unsigned certificate.
func Sign(unsigned []byte, signer keys.Signer, hashAlg string) ([]byte, error) {
	c, err := Parse(unsigned)
	if err != nil {
		return nil, err
	}
	if c.Signed() {
		return nil, fmt.Errorf("certificate: %s is already signed", c.ResultID())
	}
	scope := signedScope(unsigned)
	sig, err := signer.Sign(scope, hashAlg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(scope)
	buf.WriteString("SIGNATURE\n")
	for _, p := range []pair{{"Hash-Alg", hashAlg}, {"Public-Key", signer.PublicKey()}, {"Signature", sig}} {
		if err := writePair(&buf, p.key, p.value); err != nil {
			return nil, err
		}
	}
	buf.WriteString(Postamble)
	return buf.Bytes(), nil
}

// signedScope is everything before the SIGNATURE header, or before the
// postamble of an unsigned certificate, plus the separating blank line.
func signedScope(data []byte) []byte {
	if i := bytes.Index(data, []byte("\nSIGNATURE\n")); i >= 0 {
		return data[:i+1]
	}
	body := bytes.TrimSuffix(data, []byte(Postamble))
	out := make([]byte, 0, len(body)+1)
	out = append(out, body...)
	return append(out, '\n')
}

// Parse reads a signed or unsigned certificate and rejects anything that is
// not in canonical form.
func Parse(data []byte) (*Certificate, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrMalformed)
	}
	if bytes.Contains(data, []byte("\r")) {
		return nil, fmt.Errorf("%w: CR line endings", ErrMalformed)
	}
	if !bytes.HasPrefix(data, []byte(Preamble+"\n")) || !bytes.HasSuffix(data, []byte("\n"+Postamble)) {
		return nil, fmt.Errorf("%w: missing armor", ErrMalformed)
	}
	body := string(data[len(Preamble)+1 : len(data)-len(Postamble)])
	blocks := strings.Split(strings.TrimSuffix(body, "\n"), "\n\n")

	c := &Certificate{Raw: data, Sections: map[string][]pair{}}
	if len(blocks) < 3 || len(blocks) > 4 {
		return nil, fmt.Errorf("%w: expected 3 or 4 sections, got %d", ErrMalformed, len(blocks))
	}
	for i, block := range blocks {
		lines := strings.Split(block, "\n")
		if lines[0] != sectionOrder[i] {
			return nil, fmt.Errorf("%w: section %d is %q, want %q", ErrMalformed, i, lines[0], sectionOrder[i])
		}
		for _, line := range lines[1:] {
			k, v, ok := strings.Cut(line, ": ")
			if !ok || k == "" || v == "" || strings.TrimSpace(v) != v {
				return nil, fmt.Errorf("%w: bad line %q", ErrMalformed, line)
			}
			c.Sections[lines[0]] = append(c.Sections[lines[0]], pair{k, v})
		}
	}
	if c.ResultID() == "" || c.ResultID() == "-" {
		return nil, fmt.Errorf("%w: missing Result-ID", ErrMalformed)
	}
	if len(blocks) == 4 {
		c.HashAlg = c.field("SIGNATURE", "Hash-Alg")
		c.PublicKey = c.field("SIGNATURE", "Public-Key")
		c.Signature = c.field("SIGNATURE", "Signature")
		if c.HashAlg == "" || c.PublicKey == "" || c.Signature == "" || len(c.Sections["SIGNATURE"]) != 3 {
			return nil, fmt.Errorf("%w: incomplete SIGNATURE section", ErrMalformed)
		}
	}
	return c, nil
}

// VerifySignature parses a signed certificate and checks its signature. When
// trusted is non-empty the signing key must be one of them.
func VerifySignature(data []byte, trusted ...string) (*Certificate, error) {
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if !c.Signed() {
		return c, fmt.Errorf("certificate: %s is not signed", c.ResultID())
	}
	if len(trusted) > 0 {
		ok := false
		for _, k := range trusted {
			if k == c.PublicKey {
				ok = true
				break
			}
		}
		if !ok {
			return c, fmt.Errorf("certificate: signing key %s is not trusted", c.PublicKey)
		}
	}
	if err := keys.Verify(c.PublicKey, c.HashAlg, signedScope(data), c.Signature); err != nil {
		return c, err
	}
	return c, nil
}
