package rdx

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/raredx/triage/pkg/common/models"
)

// FlexFloat accepts a JSON number, a numeric string (optionally suffixed with
// %), or null. Unparsable values leave Valid false.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	*f = FlexFloat{}
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		s = strings.TrimSuffix(strings.TrimSpace(str), "%")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	f.Value, f.Valid = v, true
	return nil
}

func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// FlexString accepts a JSON string or number and keeps its textual form.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "null":
		*s = ""
	case strings.HasPrefix(raw, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = FlexString(str)
	default:
		*s = FlexString(raw)
	}
	return nil
}

type RawConnected struct {
	HPOID    string   `json:"hpo_id"`
	HPOName  string   `json:"hpo_name"`
	Relation string   `json:"relation,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

// RawPhenotype is one phenotype entry as the upstream services send it.
type RawPhenotype struct {
	HPOID          string         `json:"hpo_id"`
	HPOName        string         `json:"hpo_name"`
	Matched        *bool          `json:"matched"`
	ConnectedNodes []RawConnected `json:"connected_nodes,omitempty"`
	ConnectedHPOs  []RawConnected `json:"connected_hpos,omitempty"`
}

// Detail converts the raw entry, keeping the matched flag as sent (null is
// false) and preferring connected_nodes over the connected_hpos alias.
func (p RawPhenotype) Detail() models.PhenotypeMatchDetail {
	d := models.PhenotypeMatchDetail{
		Code:    p.HPOID,
		Name:    p.HPOName,
		Matched: p.Matched != nil && *p.Matched,
	}
	connected := p.ConnectedNodes
	if len(connected) == 0 {
		connected = p.ConnectedHPOs
	}
	for _, c := range connected {
		d.Connected = append(d.Connected, connectedTerm(c))
	}
	return d
}

func connectedTerm(c RawConnected) models.ConnectedTerm {
	relation := c.Relation
	if relation == "" {
		relation = "related"
	}
	return models.ConnectedTerm{Code: c.HPOID, Name: c.HPOName, Relation: relation, Score: c.Score}
}

type RawResource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// RawPrediction is one ranked entry of the prediction payload. Details holds
// whichever of the hpoDetails / HPO_Details lists was present.
type RawPrediction struct {
	Disease           string
	MatchPercentage   string
	MatchedTotalNodes string
	MatchingHPOIDs    string
	RDXScore          FlexFloat
	Rank              FlexFloat
	Weight            FlexFloat
	Description       string
	Symptoms          []string
	Prevalence        string
	Resources         []RawResource
	Details           []RawPhenotype
}

type rawPredictionWire struct {
	Disease           string         `json:"Disease"`
	MatchPercentage   FlexString     `json:"Match_Percentage"`
	MatchedTotalNodes FlexString     `json:"Matched/Total_Nodes"`
	MatchingHPOIDs    FlexString     `json:"Matching_HPO_IDs"`
	RDXScore          FlexFloat      `json:"RDX_Score"`
	Rank              FlexFloat      `json:"Rank"`
	Weight            FlexFloat      `json:"Weight"`
	Description       string         `json:"description"`
	Symptoms          []string       `json:"symptoms"`
	Prevalence        string         `json:"prevalence"`
	Resources         []RawResource  `json:"resources"`
	HpoDetails        []RawPhenotype `json:"hpoDetails"`
	LegacyDetails     []RawPhenotype `json:"HPO_Details"`
}

func (p *RawPrediction) UnmarshalJSON(b []byte) error {
	var w rawPredictionWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	details := w.HpoDetails
	if details == nil {
		details = w.LegacyDetails
	}
	*p = RawPrediction{
		Disease:           w.Disease,
		MatchPercentage:   string(w.MatchPercentage),
		MatchedTotalNodes: string(w.MatchedTotalNodes),
		MatchingHPOIDs:    string(w.MatchingHPOIDs),
		RDXScore:          w.RDXScore,
		Rank:              w.Rank,
		Weight:            w.Weight,
		Description:       w.Description,
		Symptoms:          w.Symptoms,
		Prevalence:        w.Prevalence,
		Resources:         w.Resources,
		Details:           details,
	}
	return nil
}

// PredictionPayload is the ranked-disease response. Older deployments name
// the list "diseases".
type PredictionPayload struct {
	Predictions []RawPrediction
}

func (p *PredictionPayload) UnmarshalJSON(b []byte) error {
	var w struct {
		Predictions []RawPrediction `json:"predictions"`
		Diseases    []RawPrediction `json:"diseases"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	p.Predictions = w.Predictions
	if p.Predictions == nil {
		p.Predictions = w.Diseases
	}
	return nil
}

type predictRequest struct {
	HPOIDs []string `json:"hpo_ids"`
	Age    int      `json:"age"`
	UUID   string   `json:"uuid"`
}

// DiseasePhenotypesPayload is the disease phenotype listing.
type DiseasePhenotypesPayload struct {
	DiseaseID       string         `json:"disease_id"`
	DiseaseName     string         `json:"disease_name"`
	Symptoms        []RawPhenotype `json:"symptoms"`
	ConnectedHPOs   []RawPhenotype `json:"connected_hpos"`
	TotalSymptoms   *int           `json:"total_symptoms"`
	MatchedSymptoms *int           `json:"matched_symptoms"`
}

// Model converts the listing; connected_hpos wins over symptoms whenever the
// field is present.
func (p DiseasePhenotypesPayload) Model(requested string) models.DiseasePhenotypes {
	terms := p.ConnectedHPOs
	if terms == nil {
		terms = p.Symptoms
	}
	out := models.DiseasePhenotypes{
		DiseaseID:   firstNonEmpty(p.DiseaseID, requested),
		DiseaseName: firstNonEmpty(p.DiseaseName, requested),
		Symptoms:    make([]models.PhenotypeMatchDetail, 0, len(terms)),
	}
	matched := 0
	for _, t := range terms {
		d := t.Detail()
		if d.Matched {
			matched++
		}
		out.Symptoms = append(out.Symptoms, d)
	}
	out.TotalSymptoms = len(out.Symptoms)
	if p.TotalSymptoms != nil && *p.TotalSymptoms > 0 {
		out.TotalSymptoms = *p.TotalSymptoms
	}
	out.MatchedSymptoms = matched
	if p.MatchedSymptoms != nil {
		out.MatchedSymptoms = *p.MatchedSymptoms
	}
	return out
}

type mappingRequest struct {
	Text string `json:"text"`
	UUID string `json:"uuid"`
}

type mappedTerm struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	HPOID   string `json:"hpo_id"`
	HPOName string `json:"hpo_name"`
}

type mappingResponse struct {
	HPOTerms []mappedTerm `json:"hpo_terms"`
}

type relatedResponse struct {
	RelatedTerms []RawConnected `json:"related_terms"`
}

// catalogEntry tolerates both id spellings used by the catalog service.
type catalogEntry struct {
	ID         string   `json:"id"`
	HPOID      string   `json:"hpoid"`
	Name       string   `json:"name"`
	Definition string   `json:"definition"`
	Synonyms   []string `json:"synonyms"`
	Xrefs      []string `json:"xrefs"`
}

func (e catalogEntry) term() models.PhenotypeTerm {
	return models.PhenotypeTerm{
		ID:         firstNonEmpty(e.HPOID, e.ID),
		Name:       e.Name,
		Definition: e.Definition,
		Synonyms:   e.Synonyms,
		Xrefs:      e.Xrefs,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type diseaseInfoRequest struct {
	Name string `json:"name"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
