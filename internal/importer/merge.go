package importer

import (
	"sort"
	"time"

	"github.com/wardenpanel/warden-backend/internal/models"
)

// MergePlayer combines a validated incoming record with the stored record for
// the same stable id and returns the document to persist. It never fails:
// repeated imports of the same file converge on the same result.
//
// Per-field policy:
//   - usernames: union by name, incoming-only entries appended in first-seen order
//   - notes: concatenated (notes are a log, they have no identity)
//   - IP sessions: keyed by address, login lists sorted/deduplicated,
//     firstLogin = min of both, classification flags first-writer-wins
//   - punishments: keyed by id, an existing id is never duplicated
//   - data: shallow merge, incoming wins
func MergePlayer(existing, incoming *models.Player) *models.Player {
	if existing == nil {
		out := *incoming
		out.IPs = mergeIPs(nil, incoming.IPs)
		return &out
	}

	out := *existing
	out.Usernames = mergeUsernames(existing.Usernames, incoming.Usernames)
	out.Notes = append(append([]models.StaffNote{}, existing.Notes...), incoming.Notes...)
	out.IPs = mergeIPs(existing.IPs, incoming.IPs)
	out.Punishments = mergePunishments(existing.Punishments, incoming.Punishments)
	out.Data = mergeData(existing.Data, incoming.Data)
	return &out
}

func mergeUsernames(existing, incoming []models.UsernameEntry) []models.UsernameEntry {
	out := append([]models.UsernameEntry{}, existing...)
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.Name] = true
	}
	for _, e := range incoming {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		out = append(out, e)
	}
	return out
}

func mergeIPs(existing, incoming []models.IPSession) []models.IPSession {
	out := append([]models.IPSession{}, existing...)
	byAddr := make(map[string]int, len(out))
	for i, s := range out {
		byAddr[s.Address] = i
	}
	for _, in := range incoming {
		i, ok := byAddr[in.Address]
		if !ok {
			sess := in
			sess.Logins = sortedUniqueTimes(in.Logins)
			byAddr[in.Address] = len(out)
			out = append(out, sess)
			continue
		}
		out[i] = mergeIPSession(out[i], in)
	}
	return out
}

func mergeIPSession(cur, in models.IPSession) models.IPSession {
	cur.Logins = sortedUniqueTimes(append(append([]time.Time{}, cur.Logins...), in.Logins...))
	if in.FirstLogin.Before(cur.FirstLogin) {
		cur.FirstLogin = in.FirstLogin
	}
	// Classification is filled only when absent so repeated imports cannot
	// flap an address between providers.
	if cur.Country == "" {
		cur.Country = in.Country
	}
	if cur.Region == "" {
		cur.Region = in.Region
	}
	if cur.ASN == "" {
		cur.ASN = in.ASN
	}
	if cur.Proxy == nil {
		cur.Proxy = in.Proxy
	}
	if cur.Hosting == nil {
		cur.Hosting = in.Hosting
	}
	return cur
}

func sortedUniqueTimes(ts []time.Time) []time.Time {
	if len(ts) == 0 {
		return nil
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	out := ts[:1]
	for _, t := range ts[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}

func mergePunishments(existing, incoming []models.Punishment) []models.Punishment {
	out := append([]models.Punishment{}, existing...)
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.ID] = true
	}
	for _, p := range incoming {
		if seen[p.ID] {
			// The id is already on record; its notes, evidence and
			// modifications were imported with it the first time.
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

func mergeData(existing, incoming map[string]models.Value) map[string]models.Value {
	if len(incoming) == 0 {
		return existing
	}
	out := make(map[string]models.Value, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	// The import is authoritative for free-form data.
	for k, v := range incoming {
		out[k] = v
	}
	return out
}
