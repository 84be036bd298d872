package popup

import "slices"

// NavigationStack is the history of view modes for one viewer. It never
// holds two structurally equal modes.
type NavigationStack struct {
	modes []ViewMode
}

// PushOrPromote puts mode on top, moving it there if already present. It
// reports whether mode was promoted rather than added.
func (s *NavigationStack) PushOrPromote(mode ViewMode) bool {
	idx := slices.IndexFunc(s.modes, func(m ViewMode) bool { return EqualModes(m, mode) })
	if idx >= 0 {
		s.modes = slices.Delete(s.modes, idx, idx+1)
	}
	s.modes = append(s.modes, cloneMode(mode))
	return idx >= 0
}

// Pop discards the top mode and returns the one revealed beneath it. It
// returns false when the stack is empty afterwards.
func (s *NavigationStack) Pop() (ViewMode, bool) {
	if len(s.modes) == 0 {
		return nil, false
	}
	s.modes[len(s.modes)-1] = nil
	s.modes = s.modes[:len(s.modes)-1]
	return s.Peek()
}

// Peek returns the top mode.
func (s *NavigationStack) Peek() (ViewMode, bool) {
	if len(s.modes) == 0 {
		return nil, false
	}
	return s.modes[len(s.modes)-1], true
}

// Clear empties the stack.
func (s *NavigationStack) Clear() {
	clear(s.modes)
	s.modes = s.modes[:0]
}

// Len returns the stack depth.
func (s *NavigationStack) Len() int { return len(s.modes) }

// Modes returns the stack bottom to top.
func (s *NavigationStack) Modes() []ViewMode {
	out := make([]ViewMode, len(s.modes))
	for i, m := range s.modes {
		out[i] = cloneMode(m)
	}
	return out
}
