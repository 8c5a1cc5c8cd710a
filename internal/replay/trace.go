package replay

// Event flattens the record into a trace line. Deviations are always
// present; the observed and expected state only when verbose.
func (r StepRecord) Event(world, agent int, verbose bool) map[string]any {
	ev := map[string]any{
		"event":        "replay_step",
		"world":        world,
		"agent":        agent,
		"index":        r.Index,
		"consistent":   r.Consistent,
		"dev_position": r.Deviation.Position,
		"dev_heading":  r.Deviation.Heading,
		"dev_speed":    r.Deviation.Speed,
	}
	if verbose {
		ev["action"] = r.Action
		ev["position"] = r.Position
		ev["expected_position"] = r.ExpectedPosition
		ev["heading"] = r.Heading
		ev["expected_heading"] = r.ExpectedHeading
		ev["speed"] = r.Speed
		ev["expected_speed"] = r.ExpectedSpeed
	}
	return ev
}
