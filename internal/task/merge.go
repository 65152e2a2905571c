package task

// Merge applies a kind's task-defaults underneath a task and returns the
// result; neither argument is modified.
//
// Precedence, field by field:
//   - strings, Optimization and SoftDependencies: the task's value wins when
//     set, otherwise the default is used.
//   - Attributes, Definition, Run, Extra and Dependencies: merged key by key
//     with MergeMaps, task values winning.
func Merge(defaults, t *RawTask) *RawTask {
	if defaults == nil {
		return t.Clone()
	}
	if t == nil {
		return defaults.Clone()
	}

	out := t.Clone()
	if out.Name == "" {
		out.Name = defaults.Name
	}
	if out.Label == "" {
		out.Label = defaults.Label
	}
	if out.Description == "" {
		out.Description = defaults.Description
	}
	if out.Optimization == nil && defaults.Optimization != nil {
		opt := *defaults.Optimization
		opt.Arg = copyValue(opt.Arg)
		out.Optimization = &opt
	}
	if out.SoftDependencies == nil && defaults.SoftDependencies != nil {
		out.SoftDependencies = append([]string(nil), defaults.SoftDependencies...)
	}

	out.Attributes = MergeMaps(defaults.Attributes, t.Attributes)
	out.Definition = MergeMaps(defaults.Definition, t.Definition)
	out.Run = MergeMaps(defaults.Run, t.Run)
	out.Extra = MergeMaps(defaults.Extra, t.Extra)

	if defaults.Dependencies != nil || t.Dependencies != nil {
		deps := make(map[string]string, len(defaults.Dependencies)+len(t.Dependencies))
		for k, v := range defaults.Dependencies {
			deps[k] = v
		}
		for k, v := range t.Dependencies {
			deps[k] = v
		}
		out.Dependencies = deps
	}
	return out
}

// MergeMaps deep-merges override onto base into a fresh map. Where both
// hold a mapping under the same key the mappings are merged recursively;
// any other override value, lists included, replaces the base value.
func MergeMaps(base, override map[string]any) map[string]any {
	if base == nil && override == nil {
		return nil
	}
	out := CopyMap(base)
	if out == nil {
		out = make(map[string]any, len(override))
	}
	for k, v := range override {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := out[k].(map[string]any); ok {
				out[k] = MergeMaps(existing, sub)
				continue
			}
		}
		out[k] = copyValue(v)
	}
	return out
}
