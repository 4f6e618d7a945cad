package relationship

// ResolveAdvancePay は関係の履歴から雇用主の現在の立替状況を決定します。
//
// 有効な行があればその値を返します。なければ valid_to が最も新しい行、
// 同値の場合は valid_from が最も新しい行の値を返します。履歴が空なら AdvancePayUnknown です。
func ResolveAdvancePay(history []*Relationship) AdvancePay {
	var (
		active *Relationship
		latest *Relationship
	)

	for _, rel := range history {
		if rel == nil {
			continue
		}
		if rel.ValidTo == nil {
			// 有効な行が複数ある場合は後に開始した行を採用する
			if active == nil || rel.ValidFrom.After(active.ValidFrom) {
				active = rel
			}
			continue
		}
		if latest == nil || closedLater(rel, latest) {
			latest = rel
		}
	}

	switch {
	case active != nil:
		return normalize(active.AdvancesPay)
	case latest != nil:
		return normalize(latest.AdvancesPay)
	default:
		return AdvancePayUnknown
	}
}

func closedLater(a, b *Relationship) bool {
	if a.ValidTo.Equal(*b.ValidTo) {
		return a.ValidFrom.After(b.ValidFrom)
	}
	return a.ValidTo.After(*b.ValidTo)
}

func normalize(a AdvancePay) AdvancePay {
	switch a {
	case AdvancePayYes, AdvancePayNo:
		return a
	default:
		return AdvancePayUnknown
	}
}
