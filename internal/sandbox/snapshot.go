package sandbox

// snapshotState is the bookkeeping of one StrategySnapshot execution
type snapshotState struct {
	before   map[string]any
	baseline map[string]any
}

// activate records the environment and swaps this sandbox's insulated
// values in. Must hold the execution lock.
func (s *Sandbox) activate() {
	env := s.engine.env
	st := &snapshotState{before: env.Snapshot()}

	for key := range s.insulated {
		if v, ok := s.private[key]; ok {
			env.Set(key, v)
		} else {
			env.Delete(key)
		}
	}

	st.baseline = env.Snapshot()
	s.snap = st
}

// deactivate diffs the environment against the activation baseline,
// classifies every changed key and reverts protected and insulated keys.
func (s *Sandbox) deactivate() {
	st := s.snap
	if st == nil {
		return
	}
	s.snap = nil

	env := s.engine.env
	after := env.Snapshot()

	changed := make(map[string]bool)
	for key, b := range st.baseline {
		if a, ok := after[key]; !ok || !sameValue(a, b) {
			changed[key] = true
		}
	}
	for key := range after {
		if _, ok := st.baseline[key]; !ok {
			changed[key] = true
		}
	}

	for key := range changed {
		switch s.Classify(key) {
		case Insulated:
			if v, ok := after[key]; ok {
				s.private[key] = v
			} else {
				delete(s.private, key)
			}
		case Protected:
			s.touched[key] = true
			restore(env, st.before, key)
		}
	}

	for key := range s.insulated {
		restore(env, st.before, key)
	}
}

func restore(env Environment, snapshot map[string]any, key string) {
	if v, ok := snapshot[key]; ok {
		env.Set(key, v)
	} else {
		env.Delete(key)
	}
}
