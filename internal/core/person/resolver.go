package person

import (
	"context"
	"strings"
	"unicode"
)

// NameResolver は国民識別番号から表示名を解決する外部コラボレータです。
// 解決できなかった識別番号は戻り値のマップに含まれません。
type NameResolver interface {
	ResolveNames(ctx context.Context, ids []string, correlationID string) (map[string]string, error)
}

// Name は人物の氏名です。
type Name struct {
	First  string
	Middle string
	Last   string
}

// Formatted は "Fornavn Mellomnavn Etternavn" 形式の表示名を返します。
// 各語は先頭のみ大文字に正規化されます。
func (n Name) Formatted() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{n.First, n.Middle, n.Last} {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts = append(parts, capitalize(p))
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = capitalizeSeparated(w, '-')
	}
	return strings.Join(words, " ")
}

func capitalizeSeparated(w string, sep rune) string {
	segments := strings.Split(w, string(sep))
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		runes := []rune(seg)
		runes[0] = unicode.ToUpper(runes[0])
		segments[i] = string(runes)
	}
	return strings.Join(segments, string(sep))
}

// DistinctIDs は空でない識別番号を出現順に重複なく返します。
func DistinctIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
