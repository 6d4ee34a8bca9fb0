package config

import (
	"fmt"
	"strings"
)

// Expand substitutes %(name)s placeholders in tmpl with values.
// "%%" produces a literal percent sign. Unknown placeholders, unterminated
// placeholders and any other conversion are errors, so a successful
// expansion never leaves a placeholder behind.
func Expand(tmpl string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(tmpl) {
			return "", fmt.Errorf("template %q: trailing %%", tmpl)
		}
		switch tmpl[i+1] {
		case '%':
			b.WriteByte('%')
			i++
		case '(':
			end := strings.IndexByte(tmpl[i+2:], ')')
			if end < 0 {
				return "", fmt.Errorf("template %q: unterminated placeholder at offset %d", tmpl, i)
			}
			name := tmpl[i+2 : i+2+end]
			conv := i + 2 + end + 1
			if conv >= len(tmpl) || tmpl[conv] != 's' {
				return "", fmt.Errorf("template %q: placeholder %%(%s) must be followed by s", tmpl, name)
			}
			v, ok := values[name]
			if !ok {
				return "", fmt.Errorf("template %q: unknown placeholder %%(%s)s", tmpl, name)
			}
			b.WriteString(v)
			i = conv
		default:
			return "", fmt.Errorf("template %q: unsupported conversion %%%c", tmpl, tmpl[i+1])
		}
	}

	return b.String(), nil
}

// ObjectPath returns the lookaside cache path of a source file.
func (c Cache) ObjectPath(name, filename, hashtype, hash string) (string, error) {
	return Expand(c.Path, map[string]string{
		"name":     name,
		"filename": filename,
		"hashtype": hashtype,
		"hash":     hash,
	})
}

// ObjectURL returns the full lookaside cache URL of a source file.
func (c Cache) ObjectURL(name, filename, hashtype, hash string) (string, error) {
	p, err := c.ObjectPath(name, filename, hashtype, hash)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(c.URL, "/") + "/" + strings.TrimPrefix(p, "/"), nil
}
