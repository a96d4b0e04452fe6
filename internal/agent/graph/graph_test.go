package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorodbot/server/internal/agent/graph/conversations"
	"github.com/gorodbot/server/internal/agent/graph/nodes"
	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/agent/repo"
	"github.com/gorodbot/server/internal/agent/resilience"
	"github.com/gorodbot/server/internal/agent/toxicity"
	"github.com/gorodbot/server/internal/agent/tools"
	"github.com/gorodbot/server/internal/rag"
)

// fakeModel replays a scripted queue of replies and records its inputs.
type fakeModel struct {
	mu      sync.Mutex
	queue   []fakeReply
	calls   int
	systems []string
}

type fakeReply struct {
	content string
	err     error
}

func (m *fakeModel) push(content string) { m.queue = append(m.queue, fakeReply{content: content}) }
func (m *fakeModel) pushErr(err error)   { m.queue = append(m.queue, fakeReply{err: err}) }

func (m *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(input) > 0 && input[0].Role == schema.System {
		m.systems = append(m.systems, input[0].Content)
	}
	if len(m.queue) == 0 {
		return nil, errors.New("unexpected model call")
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	if next.err != nil {
		return nil, next.err
	}
	return schema.AssistantMessage(next.content, nil), nil
}

func (m *fakeModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

type fakeGeo struct {
	mu         sync.Mutex
	calls      int
	candidates map[string][]model.AddressCandidate
	err        error
}

func (g *fakeGeo) ResolveAddress(_ context.Context, query string, _ int) ([]model.AddressCandidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.candidates[strings.ToLower(strings.TrimSpace(query))], nil
}

// fakeCity records endpoint calls; individual endpoints can be failed.
type fakeCity struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeCity) hit(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if err := f.fail[name]; err != nil {
		return "", err
	}
	return `{"data": "` + name + `"}`, nil
}

func (f *fakeCity) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeCity) Districts(context.Context) (string, error) { return f.hit("districts") }
func (f *fakeCity) DistrictInfoByName(context.Context, string) (string, error) {
	return f.hit("district_info")
}
func (f *fakeCity) DistrictInfoByBuilding(context.Context, int64) (string, error) {
	return f.hit("district_info_by_building")
}
func (f *fakeCity) NearestMFC(context.Context, int64) (string, error) { return f.hit("nearest_mfc") }
func (f *fakeCity) MFCByDistrict(context.Context, string) (string, error) {
	return f.hit("mfc_by_district")
}
func (f *fakeCity) AllMFC(context.Context) (string, error) { return f.hit("all_mfc") }
func (f *fakeCity) PolyclinicsByBuilding(context.Context, int64) (string, error) {
	return f.hit("polyclinics")
}
func (f *fakeCity) LinkedSchools(context.Context, int64) (string, error) {
	return f.hit("linked_schools")
}
func (f *fakeCity) SchoolsMap(context.Context, string) (string, error) { return f.hit("schools_map") }
func (f *fakeCity) Kindergartens(context.Context, string, int) (string, error) {
	return f.hit("kindergartens")
}
func (f *fakeCity) ManagementCompany(context.Context, int64) (string, error) {
	return f.hit("management_company")
}
func (f *fakeCity) Disconnections(context.Context, int64) (string, error) {
	return f.hit("disconnections")
}
func (f *fakeCity) VetClinics(context.Context, float64, float64, int) (string, error) {
	return f.hit("vet_clinics")
}
func (f *fakeCity) PetParks(context.Context, float64, float64, int) (string, error) {
	return f.hit("pet_parks")
}
func (f *fakeCity) PetShelters(context.Context, float64, float64, int) (string, error) {
	return f.hit("pet_shelters")
}
func (f *fakeCity) PensionerServices(context.Context, string, int) (string, error) {
	return f.hit("pensioner_services")
}
func (f *fakeCity) PensionerHotlines(context.Context, string) (string, error) {
	return f.hit("pensioner_hotlines")
}
func (f *fakeCity) CityEvents(context.Context, string, string, int) (string, error) {
	return f.hit("city_events")
}
func (f *fakeCity) SportEvents(context.Context, string, int) (string, error) {
	return f.hit("sport_events")
}
func (f *fakeCity) Sportgrounds(context.Context, string, int) (string, error) {
	return f.hit("sportgrounds")
}
func (f *fakeCity) BeautifulPlaces(context.Context, string, int) (string, error) {
	return f.hit("beautiful_places")
}
func (f *fakeCity) TouristRoutes(context.Context, int) (string, error) {
	return f.hit("tourist_routes")
}
func (f *fakeCity) RoadWorks(context.Context, string, int) (string, error) {
	return f.hit("road_works")
}
func (f *fakeCity) RecyclingPoints(context.Context, float64, float64, int) (string, error) {
	return f.hit("recycling_points")
}

type testEnv struct {
	router   *fakeModel
	response *fakeModel
	geo      *fakeGeo
	city     *fakeCity
	store    *repo.MemoryThreadRepository
	runner   Runner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		router:   &fakeModel{},
		response: &fakeModel{},
		geo:      &fakeGeo{candidates: map[string][]model.AddressCandidate{}},
		city:     &fakeCity{},
		store:    repo.NewMemoryThreadRepository(),
	}

	searcher, err := rag.NewMemoryIndex()
	require.NoError(t, err)
	require.NoError(t, rag.SeedDefault(searcher))
	t.Cleanup(func() { searcher.Close() })

	convCfg := model.ConversationConfig{}
	convCfg.History.MaxTurns = 4

	fast := resilience.Policy{
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
		Timeout:         time.Second,
	}
	now := func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	deps := &nodes.Deps{
		Models: &nodes.ChatModels{
			Router:            e.router,
			Response:          e.response,
			RouterModelName:   "test-router",
			ResponseModelName: "test-response",
		},
		Manager:           conversations.NewMessagesManager(e.store, convCfg),
		Toxicity:          toxicity.NewFilter(nil),
		Geocoder:          e.geo,
		Registry:          tools.NewRegistry(e.city, e.geo, 5, now),
		Searcher:          searcher,
		LLMPolicy:         fast,
		APIPolicy:         fast,
		MaxClarifications: 2,
		MaxCandidates:     5,
		SearchTopK:        3,
	}

	runnable, err := BuildGraph(context.Background(), &GraphConfig{Deps: deps})
	require.NoError(t, err)
	e.runner = &graphRunner{runnable: runnable}
	return e
}

func (e *testEnv) turn(t *testing.T, threadID, query string) *model.TurnResult {
	t.Helper()
	result, err := e.runner.HandleTurn(context.Background(), threadID, query)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func (e *testEnv) state(t *testing.T, threadID string) *model.ThreadState {
	t.Helper()
	st, err := e.store.LoadState(context.Background(), threadID)
	require.NoError(t, err)
	require.NotNil(t, st)
	return st
}

func classifyJSON(c model.Category) string {
	return fmt.Sprintf(`{"category": %q, "confidence": 0.9}`, string(c))
}

func TestToxicQueryShortCircuits(t *testing.T) {
	e := newTestEnv(t)

	result := e.turn(t, "t1", "что за тупой бот")
	assert.Contains(t, result.ResponseText, "уважительно")
	assert.False(t, result.AwaitingClarification)
	assert.Empty(t, result.Category)

	// No model ever saw the message.
	assert.Zero(t, e.router.calls)
	assert.Zero(t, e.response.calls)

	// The turn is still recorded in the history.
	hist, err := e.store.LoadHistory(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, hist.Messages, 2)
}

func TestToxicTurnPreservesPendingClarification(t *testing.T) {
	e := newTestEnv(t)
	threadID := "t1"

	e.router.push(classifyJSON(model.CategoryMFC))
	e.router.push(`{"is_clear": false, "missing_params": ["address"], "clarification_question": "Уточните адрес?"}`)
	result := e.turn(t, threadID, "где ближайший мфц")
	assert.True(t, result.AwaitingClarification)

	result = e.turn(t, threadID, "ты идиот")
	assert.True(t, result.AwaitingClarification, "pending question survives a hostile turn")

	st := e.state(t, threadID)
	assert.True(t, st.AwaitingClarification)
	assert.Equal(t, 1, st.ClarificationAttempts, "hostile turn spends no budget")
	assert.Equal(t, model.CategoryMFC, st.Category)
}

func TestConversationFlow(t *testing.T) {
	e := newTestEnv(t)

	e.router.push(classifyJSON(model.CategoryConversation))
	e.response.push("Здравствуйте! Чем могу помочь?")

	result := e.turn(t, "t1", "привет")
	assert.Equal(t, "Здравствуйте! Чем могу помочь?", result.ResponseText)
	assert.Equal(t, model.CategoryConversation, result.Category)
	assert.False(t, result.AwaitingClarification)
	assert.Equal(t, 1, e.router.calls)
	assert.Equal(t, 1, e.response.calls)
}

func TestKnowledgeBaseFlow(t *testing.T) {
	e := newTestEnv(t)

	e.router.push(classifyJSON(model.CategoryRAG))
	e.response.push("Загранпаспорт оформляется через Госуслуги или МФЦ.")

	result := e.turn(t, "t1", "как оформить загранпаспорт")
	assert.Equal(t, model.CategoryRAG, result.Category)
	assert.False(t, result.AwaitingClarification)

	// The response model received retrieved context, not the bare question.
	require.Len(t, e.response.systems, 1)
	assert.Contains(t, e.response.systems[0], "загранпаспорт")
}

func TestRouterFailureFallsBackToKnowledgeBase(t *testing.T) {
	e := newTestEnv(t)

	e.router.pushErr(errors.New("model melted"))
	e.response.push("Отвечаю по базе знаний.")

	result := e.turn(t, "t1", "как оформить загранпаспорт")
	assert.Equal(t, model.CategoryRAG, result.Category)
	assert.Equal(t, "Отвечаю по базе знаний.", result.ResponseText)
}

func TestUnparseableClassificationFallsBackToKnowledgeBase(t *testing.T) {
	e := newTestEnv(t)

	e.router.push("это не json")
	e.response.push("Отвечаю по базе знаний.")

	result := e.turn(t, "t1", "как оформить загранпаспорт")
	assert.Equal(t, model.CategoryRAG, result.Category)
	assert.Equal(t, "Отвечаю по базе знаний.", result.ResponseText)
}

func TestResponseModelFailureSendsApology(t *testing.T) {
	e := newTestEnv(t)

	e.router.push(classifyJSON(model.CategoryConversation))
	e.response.pushErr(errors.New("model melted"))

	result := e.turn(t, "t1", "привет")
	assert.Equal(t, resilience.UserMessage(resilience.KindUnknown), result.ResponseText)
	assert.False(t, result.AwaitingClarification)
}

func TestAddressClarificationAndCandidateSelection(t *testing.T) {
	e := newTestEnv(t)
	threadID := "t1"

	e.geo.candidates["невский 28"] = []model.AddressCandidate{
		{FullAddress: "Невский проспект, 28", BuildingID: 101, Lat: 59.936, Lon: 30.325},
		{FullAddress: "Невский проспект, 28 к2", BuildingID: 102, Lat: 59.937, Lon: 30.326},
	}

	// Turn 1: no address yet, the assistant asks for one.
	e.router.push(classifyJSON(model.CategoryMFC))
	e.router.push(`{"is_clear": false, "missing_params": ["address"], "clarification_question": "Уточните адрес: улица и дом?"}`)
	result := e.turn(t, threadID, "где ближайший мфц")
	assert.Equal(t, "Уточните адрес: улица и дом?", result.ResponseText)
	assert.True(t, result.AwaitingClarification)
	st := e.state(t, threadID)
	assert.Equal(t, 1, st.ClarificationAttempts)
	assert.Equal(t, model.ClarificationMissing, st.ClarificationType)

	// Turn 2: ambiguous address, the assistant lists candidates.
	e.router.push(classifyJSON(model.CategoryMFC))
	e.router.push(`{"is_clear": true, "missing_params": [], "extracted_address": "невский 28"}`)
	result = e.turn(t, threadID, "невский 28")
	assert.True(t, result.AwaitingClarification)
	assert.Contains(t, result.ResponseText, "1. Невский проспект, 28")
	assert.Contains(t, result.ResponseText, "2. Невский проспект, 28 к2")
	st = e.state(t, threadID)
	assert.Equal(t, model.ClarificationCandidates, st.ClarificationType)
	require.Len(t, st.PendingCandidates, 2)
	assert.Equal(t, 1, e.geo.calls)

	// Turn 3: a bare ordinal picks the candidate without any new model or
	// geocoder call, the tool runs against the chosen building.
	routerCallsBefore := e.router.calls
	e.response.push("Ближайший МФЦ: Невский проспект, 25.")
	result = e.turn(t, threadID, "2")
	assert.Equal(t, "Ближайший МФЦ: Невский проспект, 25.", result.ResponseText)
	assert.Equal(t, model.CategoryMFC, result.Category)
	assert.False(t, result.AwaitingClarification)
	assert.Equal(t, routerCallsBefore, e.router.calls, "ordinal selection skips classification")
	assert.Equal(t, 1, e.geo.calls, "ordinal selection skips geocoding")
	assert.Equal(t, []string{"nearest_mfc"}, e.city.called())

	// A delivered answer closes the loop but keeps the resolved address.
	st = e.state(t, threadID)
	assert.Zero(t, st.ClarificationAttempts)
	assert.False(t, st.AwaitingClarification)
	assert.Equal(t, "Невский проспект, 28 к2", st.ExtractedAddress)
}

func TestSingleCandidateValidatesImmediately(t *testing.T) {
	e := newTestEnv(t)

	e.geo.candidates["садовая 2"] = []model.AddressCandidate{
		{FullAddress: "Садовая улица, 2", BuildingID: 77},
	}

	e.router.push(classifyJSON(model.CategoryPolyclinic))
	e.router.push(`{"is_clear": true, "missing_params": [], "extracted_address": "садовая 2"}`)
	e.response.push("Ваша поликлиника №40.")

	result := e.turn(t, "t1", "к какой поликлинике прикреплён дом садовая 2")
	assert.False(t, result.AwaitingClarification)
	assert.Equal(t, []string{"polyclinics"}, e.city.called())
}

func TestUnknownAddressAsksAgain(t *testing.T) {
	e := newTestEnv(t)

	e.router.push(classifyJSON(model.CategoryMFC))
	e.router.push(`{"is_clear": true, "missing_params": [], "extracted_address": "улица которой нет 1"}`)

	result := e.turn(t, "t1", "мфц на улице которой нет 1")
	assert.True(t, result.AwaitingClarification)
	assert.Contains(t, result.ResponseText, "Не нашла адрес")
	assert.Empty(t, e.city.called())
}

func TestGeocoderFailureApologizesWithoutSpendingBudget(t *testing.T) {
	e := newTestEnv(t)
	threadID := "t1"

	e.router.push(classifyJSON(model.CategoryMFC))
	e.router.push(`{"is_clear": false, "missing_params": ["address"], "clarification_question": "Уточните адрес?"}`)
	e.turn(t, threadID, "где мфц")

	e.geo.err = resilience.NewError(resilience.KindServiceUnavailable, "geo down", nil)
	e.router.push(classifyJSON(model.CategoryMFC))
	e.router.push(`{"is_clear": true, "missing_params": [], "extracted_address": "невский 28"}`)

	result := e.turn(t, threadID, "невский 28")
	assert.Equal(t, resilience.UserMessage(resilience.KindServiceUnavailable), result.ResponseText)

	st := e.state(t, threadID)
	assert.Equal(t, 1, st.ClarificationAttempts, "service failure spends no budget")
	assert.True(t, st.AwaitingClarification, "the original question is still pending")
}

func TestClarificationBudgetExhaustion(t *testing.T) {
	e := newTestEnv(t)
	threadID := "t1"

	unclear := `{"is_clear": false, "missing_params": ["district"], "clarification_question": "Какой район?"}`

	e.router.push(classifyJSON(model.CategoryKindergarten))
	e.router.push(unclear)
	result := e.turn(t, threadID, "хочу записать ребёнка в сад")
	assert.True(t, result.AwaitingClarification)
	assert.Equal(t, 1, e.state(t, threadID).ClarificationAttempts)

	e.router.push(classifyJSON(model.CategoryKindergarten))
	e.router.push(unclear)
	result = e.turn(t, threadID, "обычный сад")
	assert.True(t, result.AwaitingClarification)
	assert.Equal(t, 2, e.state(t, threadID).ClarificationAttempts)

	// Third unclear turn gives up and answers from the knowledge base.
	e.router.push(classifyJSON(model.CategoryKindergarten))
	e.router.push(unclear)
	e.response.push("Запись в детский сад оформляется через Госуслуги.")
	result = e.turn(t, threadID, "ну не знаю")
	assert.False(t, result.AwaitingClarification)
	assert.Equal(t, "Запись в детский сад оформляется через Госуслуги.", result.ResponseText)
	assert.Zero(t, e.state(t, threadID).ClarificationAttempts)
}

func TestTopicChangeResetsClarification(t *testing.T) {
	e := newTestEnv(t)
	threadID := "t1"

	e.router.push(classifyJSON(model.CategoryMFC))
	e.router.push(`{"is_clear": false, "missing_params": ["address"], "clarification_question": "Уточните адрес?"}`)
	e.turn(t, threadID, "где мфц")

	// The user abandons the MFC question for the event listing.
	e.router.push(classifyJSON(model.CategoryEvents))
	e.response.push("На этой неделе в городе проходит фестиваль.")
	result := e.turn(t, threadID, "какие мероприятия на выходных")

	assert.Equal(t, model.CategoryEvents, result.Category)
	assert.False(t, result.AwaitingClarification)
	assert.Equal(t, []string{"city_events", "sport_events"}, e.city.called())

	st := e.state(t, threadID)
	assert.Zero(t, st.ClarificationAttempts)
	assert.False(t, st.AwaitingClarification)
}

func TestToolFailureIsMarkedForTheResponseModel(t *testing.T) {
	e := newTestEnv(t)

	e.geo.candidates["садовая 2"] = []model.AddressCandidate{
		{FullAddress: "Садовая улица, 2", BuildingID: 77},
	}
	e.city.fail = map[string]error{"polyclinics": errors.New("gateway exploded")}

	e.router.push(classifyJSON(model.CategoryPolyclinic))
	e.router.push(`{"is_clear": true, "missing_params": [], "extracted_address": "садовая 2"}`)
	e.response.push("Не удалось получить данные о поликлиниках, попробуйте позже.")

	result := e.turn(t, "t1", "моя поликлиника, садовая 2")
	assert.False(t, result.AwaitingClarification)

	assert.Equal(t, "Не удалось получить данные о поликлиниках, попробуйте позже.", result.ResponseText)

	require.Len(t, e.response.systems, 1)
	assert.Contains(t, e.response.systems[0], "ошибка: данные сейчас недоступны")
}
