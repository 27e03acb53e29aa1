package oracle

// Response schemas for structured output, one per oracle. The model is
// forced to emit exactly these shapes; anything else is a failed call and
// resolves to the oracle's fallback.

// #region fragments

func obj(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func arr(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func str(desc string) map[string]any {
	m := map[string]any{"type": "string"}
	if desc != "" {
		m["description"] = desc
	}
	return m
}

func strArr() map[string]any {
	return arr(map[string]any{"type": "string"})
}

func strEnum(vals ...string) map[string]any {
	return map[string]any{"type": "string", "enum": vals}
}

func boolean(desc string) map[string]any {
	m := map[string]any{"type": "boolean"}
	if desc != "" {
		m["description"] = desc
	}
	return m
}

// #endregion

// #region diagnosis-schemas

func diagnosisCandidateSchema() map[string]any {
	return obj(map[string]any{
		"did":               str("A random 5-character alphanumeric ID."),
		"diagnosis":         str("The specific diagnosis: [Pathology] + [Trigger/Cause] + [Acuity/Stage]."),
		"indicators_point":  strArr(),
		"reasoning":         str("Clinical deduction from indicators to diagnosis."),
		"followup_question": str("A targeted question to confirm or rule out."),
	}, "did", "diagnosis", "indicators_point", "reasoning", "followup_question")
}

func diagnoseSchema() map[string]any {
	return obj(map[string]any{
		"diagnosis_list": arr(diagnosisCandidateSchema()),
	}, "diagnosis_list")
}

func consolidateSchema() map[string]any {
	indicator := obj(map[string]any{
		"criterion": str("The clinical criterion."),
		"confirmed": boolean("Whether the transcript substantiates it."),
	}, "criterion", "confirmed")

	record := obj(map[string]any{
		"did":               str("Reuse the existing did when merging; otherwise a random 5-character alphanumeric ID."),
		"diagnosis":         str(""),
		"indicators_point":  arr(indicator),
		"reasoning":         str(""),
		"followup_question": str(""),
	}, "did", "diagnosis", "indicators_point", "reasoning", "followup_question")

	return obj(map[string]any{
		"diagnosis_list": arr(record),
	}, "diagnosis_list")
}

// #endregion

// #region question-schemas

func mergeQuestionsSchema() map[string]any {
	item := obj(map[string]any{
		"qid":      str("The ID of the question."),
		"question": str("The question text."),
	}, "qid", "question")
	return obj(map[string]any{
		"questions": arr(item),
	}, "questions")
}

func answerCheckSchema() map[string]any {
	item := obj(map[string]any{
		"qid":    str("The ID of the answered question."),
		"answer": str("The patient's answer, quoted or paraphrased."),
	}, "qid", "answer")
	return obj(map[string]any{
		"answers": arr(item),
	}, "answers")
}

func enrichSchema() map[string]any {
	item := obj(map[string]any{
		"qid":      str(""),
		"headline": str("Two to four word summary."),
		"domain":   str("Clinical domain."),
		"intent":   str("What the question is screening for."),
		"tags":     strArr(),
	}, "qid", "headline", "domain", "intent", "tags")
	return obj(map[string]any{
		"questions": arr(item),
	}, "questions")
}

// #endregion

// #region supervision-schemas

func completionSchema() map[string]any {
	return obj(map[string]any{
		"end":   boolean("True if the interview is complete."),
		"state": str("Interview phase: start, mid, or end."),
	}, "end", "state")
}

func structureSchema() map[string]any {
	span := obj(map[string]any{
		"level": strEnum("danger", "warning"),
		"text":  str("The exact span from the patient's words."),
	}, "level", "text")
	line := obj(map[string]any{
		"role":       str("NURSE, PATIENT, or SYSTEM."),
		"message":    str(""),
		"highlights": arr(span),
	}, "role", "message", "highlights")
	return obj(map[string]any{
		"transcript": arr(line),
	}, "transcript")
}

func educationSchema() map[string]any {
	point := obj(map[string]any{
		"headline": str(""),
		"content":  str("The advisory text for the patient."),
		"category": str(""),
		"urgency":  str(""),
		"source":   str("What in the conversation prompted this point."),
	}, "headline", "content", "category", "urgency", "source")
	return obj(map[string]any{
		"points": arr(point),
	}, "points")
}

// #endregion

// Analytics, checklist, and report outputs are oracle-defined objects with
// no fixed property set, which strict schema mode cannot express: a strict
// object must enumerate its properties. Those calls use plain JSON-object
// response format instead (a nil schema in invoke).
