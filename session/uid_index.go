package session

// uidIndex maps a uid to the ordered sequence of sessions currently bound to
// it. It is a plain data structure with no lock of its own: the Service
// serializes every access under its registry lock so the sid table and the
// index always change within the same critical section.
type uidIndex map[string][]*Session

// add appends the session to the uid's bucket, creating the bucket on first
// bind. Returns false when the session is already present (the caller treats
// that as a no-op success).
func (ix uidIndex) add(uid string, s *Session) bool {
	bucket := ix[uid]
	for _, existing := range bucket {
		if existing.id == s.id {
			return false
		}
	}

	ix[uid] = append(bucket, s)
	return true
}

// remove deletes the session from the uid's bucket, erasing the bucket
// entirely when it becomes empty. Returns false when the session was not in
// the bucket.
func (ix uidIndex) remove(uid string, s *Session) bool {
	bucket, ok := ix[uid]
	if !ok {
		return false
	}

	for i, existing := range bucket {
		if existing.id != s.id {
			continue
		}

		bucket = append(bucket[:i], bucket[i+1:]...)
		if len(bucket) == 0 {
			delete(ix, uid)
		} else {
			ix[uid] = bucket
		}

		return true
	}

	return false
}

// snapshot returns a copy of the uid's bucket, or nil when the uid has no
// bound sessions. Kick iterates over a snapshot precisely so closing a
// session (which mutates the bucket) cannot disturb the iteration.
func (ix uidIndex) snapshot(uid string) []*Session {
	bucket, ok := ix[uid]
	if !ok {
		return nil
	}

	cp := make([]*Session, len(bucket))
	copy(cp, bucket)
	return cp
}

// forEach calls fn for every bound session across all buckets.
func (ix uidIndex) forEach(fn func(*Session)) {
	for _, bucket := range ix {
		for _, s := range bucket {
			fn(s)
		}
	}
}
