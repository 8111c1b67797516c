package ai

import (
	"errors"
	"strings"
)

// Delimiters configure the wire format of extraction output.
type Delimiters struct {
	Tuple      string
	Record     string
	Completion string
}

func DefaultDelimiters() Delimiters {
	return Delimiters{
		Tuple:      "<|>",
		Record:     "##",
		Completion: "<|COMPLETE|>",
	}
}

// Validate rejects empty or overlapping delimiters, which would make the
// output ambiguous.
func (d Delimiters) Validate() error {
	if d.Tuple == "" || d.Record == "" || d.Completion == "" {
		return errors.New("delimiters must not be empty")
	}
	if d.Tuple == d.Record || d.Tuple == d.Completion || d.Record == d.Completion {
		return errors.New("delimiters must be distinct")
	}
	if strings.Contains(d.Tuple, d.Record) || strings.Contains(d.Record, d.Tuple) {
		return errors.New("tuple and record delimiters must not contain each other")
	}
	return nil
}

const ExtractionSystemPrompt = `You are an expert in Italian legislative and administrative law. You extract structured knowledge from legal text precisely and never invent facts that are not in the text.`

const extractionPrompt = `
# Task Context
Identify all entities of the given types in the legal text below and all relationships between them.

# Entity Types
{entity_types}

# Detailed Task Description & Rules
1. For each entity, output one record:
("entity"{tuple_delimiter}<entity_name>{tuple_delimiter}<entity_type>{tuple_delimiter}<entity_description>)
- entity_name: the name as written in the text, e.g. "Legge 7 agosto 1990, n. 241" or "Art. 3".
- entity_type: one of the entity types above. Use "entity" if none fits.
- entity_description: a short description of the entity based only on the text.

2. For each pair of related entities, output one record:
("relationship"{tuple_delimiter}<source_entity>{tuple_delimiter}<target_entity>{tuple_delimiter}<relationship_description>{tuple_delimiter}<relationship_keywords>{tuple_delimiter}<relationship_strength>)
- source_entity and target_entity must be entity names from step 1.
- relationship_keywords: one or more short verbs or phrases such as "abroga", "modifica", "rinvia a", "emanato da".
- relationship_strength: a number between 1 and 10.

3. Separate records with {record_delimiter}.
4. Dates are entities of type "data".
5. When you are finished, output {completion_delimiter}.

# Example
("entity"{tuple_delimiter}Legge 7 agosto 1990, n. 241{tuple_delimiter}legge{tuple_delimiter}Legge sul procedimento amministrativo){record_delimiter}
("entity"{tuple_delimiter}7 agosto 1990{tuple_delimiter}data{tuple_delimiter}Data di emanazione della legge){record_delimiter}
("relationship"{tuple_delimiter}Legge 7 agosto 1990, n. 241{tuple_delimiter}7 agosto 1990{tuple_delimiter}La legge è stata emanata il 7 agosto 1990{tuple_delimiter}emanato il{tuple_delimiter}9){record_delimiter}
{completion_delimiter}

# Text
{input_text}

# Output
`

const continuePrompt = `Some entities and relationships were missed in the last extraction. Add them below using the same format. Do not repeat records you already produced. Separate records with {record_delimiter} and finish with {completion_delimiter}.
`

func (d Delimiters) replacer(extra ...string) *strings.Replacer {
	pairs := []string{
		"{tuple_delimiter}", d.Tuple,
		"{record_delimiter}", d.Record,
		"{completion_delimiter}", d.Completion,
	}
	return strings.NewReplacer(append(pairs, extra...)...)
}

// BuildExtractionPrompt renders the initial extraction prompt for one chunk.
func BuildExtractionPrompt(text string, entityTypes []string, d Delimiters) string {
	types := "entity"
	if len(entityTypes) > 0 {
		types = strings.Join(entityTypes, ", ")
	}
	return strings.TrimSpace(d.replacer(
		"{entity_types}", types,
		"{input_text}", text,
	).Replace(extractionPrompt))
}

// BuildContinuePrompt renders the prompt for one gleaning round.
func BuildContinuePrompt(d Delimiters) string {
	return strings.TrimSpace(d.replacer().Replace(continuePrompt))
}
