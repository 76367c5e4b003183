package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// fallbackName is used when a file name reduces to nothing.
const fallbackName = "unnamed"

// SanitizeRelativePath turns a peer-supplied file name into a slash-separated
// relative path that cannot leave the directory it is joined onto.
// Backslashes are treated as separators, "." and ".." segments are resolved
// against a virtual root, leading separators and drive letters are dropped.
// It never fails.
func SanitizeRelativePath(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.ReplaceAll(name, "\\", "/")

	// Cleaning against "/" makes ".." stop at the root.
	cleaned := strings.TrimLeft(path.Clean("/"+name), "/")

	segments := strings.Split(cleaned, "/")
	kept := segments[:0]
	for i, seg := range segments {
		if i == 0 && isDriveLetter(seg) {
			continue
		}
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		kept = append(kept, seg)
	}

	if len(kept) == 0 {
		return fallbackName
	}
	return strings.Join(kept, "/")
}

func isDriveLetter(seg string) bool {
	if len(seg) != 2 || seg[1] != ':' {
		return false
	}
	c := seg[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// NameSet hands out sanitized destination names that do not collide within
// one batch. Names are compared case-insensitively.
type NameSet map[string]struct{}

// Claim sanitizes name and returns it, or the first free "stem (n).ext"
// variant when it is already taken.
func (ns NameSet) Claim(name string) string {
	rel := SanitizeRelativePath(name)
	dir, file := path.Split(rel)
	ext := path.Ext(file)
	if ext == file {
		ext = ""
	}
	stem := strings.TrimSuffix(file, ext)

	cand := rel
	for i := 1; ; i++ {
		key := strings.ToLower(cand)
		if _, taken := ns[key]; !taken {
			ns[key] = struct{}{}
			return cand
		}
		cand = fmt.Sprintf("%s%s (%d)%s", dir, stem, i, ext)
	}
}

// JoinUnder sanitizes name and joins it onto root using OS separators.
func JoinUnder(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(SanitizeRelativePath(name)))
}

// IsWithin reports whether target is lexically inside root.
func IsWithin(root, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
