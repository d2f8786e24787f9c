package models

import (
	"time"
)

// PhenotypeCode is a phenotype identifier in canonical HP:NNNNNNN form.
type PhenotypeCode = string

// SymptomSelection is one symptom picked by the user. Code may be a temporary
// placeholder until the free-text entry is resolved against the catalog.
type SymptomSelection struct {
	Code string `json:"id"`
	Name string `json:"name"`
}

type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type ConnectedTerm struct {
	Code     string   `json:"hpo_id"`
	Name     string   `json:"hpo_name"`
	Relation string   `json:"relation,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

type PhenotypeMatchDetail struct {
	Code      string          `json:"hpo_id"`
	Name      string          `json:"hpo_name"`
	Matched   bool            `json:"matched"`
	Connected []ConnectedTerm `json:"connected_nodes,omitempty"`
}

// DiseaseCandidate is one ranked prediction in display form.
type DiseaseCandidate struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Confidence      float64                `json:"confidence"`
	MatchPercentage string                 `json:"matchPercentage"`
	MatchedNodes    string                 `json:"matchedNodes"`
	MatchingCodes   string                 `json:"matchingHpoIds"`
	MatchedCount    int                    `json:"matchedCount"`
	TotalCount      int                    `json:"totalCount"`
	Rank            int                    `json:"rank"`
	Weight          float64                `json:"weight"`
	RDXScore        *float64               `json:"rdxScore,omitempty"`
	Description     string                 `json:"description"`
	Symptoms        []string               `json:"symptoms"`
	Prevalence      string                 `json:"prevalence"`
	Links           []Link                 `json:"links"`
	Phenotypes      []PhenotypeMatchDetail `json:"hpoDetails,omitempty"`
}

// DiseasePhenotypes is the detail view of every phenotype linked to a disease
// together with its matched status for one prediction session.
type DiseasePhenotypes struct {
	DiseaseID       string                 `json:"disease_id"`
	DiseaseName     string                 `json:"disease_name"`
	Symptoms        []PhenotypeMatchDetail `json:"symptoms"`
	TotalSymptoms   int                    `json:"total_symptoms"`
	MatchedSymptoms int                    `json:"matched_symptoms"`
}

// PhenotypeTerm is a catalog entry.
type PhenotypeTerm struct {
	ID         string   `json:"hpoid" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Definition string   `json:"definition,omitempty" yaml:"definition,omitempty"`
	Synonyms   []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
	Xrefs      []string `json:"xrefs,omitempty" yaml:"xrefs,omitempty"`
}

type DiseaseInfo struct {
	OrphaID                string   `json:"orpha_id,omitempty"`
	DiseaseName            string   `json:"disease_name,omitempty"`
	Name                   string   `json:"name,omitempty"`
	Prevalence             string   `json:"prevalence,omitempty"`
	Inheritance            string   `json:"inheritance,omitempty"`
	AgeOfOnset             string   `json:"age_of_onset,omitempty"`
	DiseaseCategory        string   `json:"disease_category,omitempty"`
	ClinicalDescription    string   `json:"clinical_description,omitempty"`
	Description            string   `json:"description,omitempty"`
	HPOTerms               string   `json:"hpo_terms,omitempty"`
	Etiology               string   `json:"etiology,omitempty"`
	Diagnosis              string   `json:"diagnosis,omitempty"`
	ManagementTreatment    string   `json:"management_treatment,omitempty"`
	ManagementAndTreatment string   `json:"management_and_treatment,omitempty"`
	GeneticCounseling      string   `json:"genetic_counseling,omitempty"`
	Prognosis              string   `json:"prognosis,omitempty"`
	AntenatalDiagnosis     string   `json:"antenatal_diagnosis,omitempty"`
	Resources              []Link   `json:"resources,omitempty"`
	Symptoms               []string `json:"symptoms,omitempty"`
	Mutation               string   `json:"mutation,omitempty"`
	MutationType           string   `json:"mutation_type,omitempty"`
	RSID                   string   `json:"rsid,omitempty"`
	ProteinName            string   `json:"protein_name,omitempty"`
	ProteinChange          string   `json:"protein_change,omitempty"`
	Pathway                string   `json:"pathway,omitempty"`
	Source                 string   `json:"source,omitempty"`
	IndicationDrugs        []string `json:"indication_drugs,omitempty"`
	ContraindicationDrugs  []string `json:"contraindication_drugs,omitempty"`
}

// PredictionRequest is the gateway-facing submission. Either Symptoms (object
// form) or Names (legacy plain display names) is used.
type PredictionRequest struct {
	AgeYears  int                `json:"age_years"`
	AgeMonths int                `json:"age_months"`
	Symptoms  []SymptomSelection `json:"symptoms,omitempty"`
	Names     []string           `json:"names,omitempty"`
}

// AgeInMonths folds the year/month pair into the single value sent upstream.
func (r PredictionRequest) AgeInMonths() int {
	return r.AgeYears*12 + r.AgeMonths
}

// SymptomCount is the number of symptoms the user picked in either form.
func (r PredictionRequest) SymptomCount() int {
	if len(r.Symptoms) > 0 {
		return len(r.Symptoms)
	}
	return len(r.Names)
}

type PredictionResponse struct {
	Token      string             `json:"uuid"`
	Candidates []DiseaseCandidate `json:"predictions"`
	Fallback   bool               `json:"fallback"`
}

// SessionSnapshot is the resumable state of a results view.
type SessionSnapshot struct {
	Token            string             `json:"uuid"`
	Predictions      []DiseaseCandidate `json:"predictions"`
	SelectedSymptoms []SymptomSelection `json:"selectedSymptoms"`
	AgeYears         int                `json:"ageYears"`
	AgeMonths        int                `json:"ageMonths"`
	Timestamp        time.Time          `json:"timestamp"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
