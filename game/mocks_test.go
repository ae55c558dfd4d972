package game

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"versus/domain"
	"versus/passage"
)

// --- WebsocketConnection ---

type MockWebsocketConnection struct {
	mock.Mock
}

func (m *MockWebsocketConnection) Close() {
	m.Called()
}

func (m *MockWebsocketConnection) Write(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockWebsocketConnection) Read() ([]byte, error) {
	args := m.Called()
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockWebsocketConnection) Ping() error {
	args := m.Called()
	return args.Error(0)
}

// --- Player ---

type MockPlayer struct {
	mock.Mock
	id       string
	username string
}

func NewMockPlayer(id, username string) *MockPlayer {
	p := &MockPlayer{id: id, username: username}
	p.On("SetRoom", mock.Anything).Return().Maybe()
	p.On("CancelAndRelease").Return().Maybe()
	p.On("Send", mock.Anything).Return(nil).Maybe()
	p.On("Ping").Return(nil).Maybe()
	return p
}

func (m *MockPlayer) Id() string {
	return m.id
}

func (m *MockPlayer) Username() string {
	return m.username
}

func (m *MockPlayer) Send(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockPlayer) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockPlayer) SetRoom(r Room) {
	m.Called(r)
}

func (m *MockPlayer) CancelAndRelease() {
	m.Called()
}

// --- Room ---

type MockRoom struct {
	mock.Mock
}

func (m *MockRoom) Send(ctx context.Context, e ClientPacketEnvelope) {
	m.Called(ctx, e)
}

func (m *MockRoom) RemoveMe(p Player) {
	m.Called(p)
}

func (m *MockRoom) RequestJoin(jreq roomJoinRequest) {
	m.Called(jreq)
}

func (m *MockRoom) PingPlayers() {
	m.Called()
}

func (m *MockRoom) GameLoop() {
	m.Called()
}

func (m *MockRoom) CloseAndRelease() {
	m.Called()
}

func (m *MockRoom) Description() RoomDescription {
	args := m.Called()
	return args.Get(0).(RoomDescription)
}

func (m *MockRoom) SetParentLobby(l Lobby) {
	m.Called(l)
}

// --- Lobby ---

type MockLobby struct {
	mock.Mock
}

func (m *MockLobby) RequestUpdateDescription(desc RoomDescription) {
	m.Called(desc)
}

func (m *MockLobby) RemoveRoom(code string) {
	m.Called(code)
}

// --- LobbyService ---

type MockLobbyService struct {
	mock.Mock
}

func (m *MockLobbyService) Reserve(ctx context.Context, settings RoomSettings) (string, error) {
	args := m.Called(ctx, settings)
	return args.String(0), args.Error(1)
}

func (m *MockLobbyService) Join(ctx context.Context, code string, p Player, skill float64) error {
	args := m.Called(ctx, code, p, skill)
	return args.Error(0)
}

func (m *MockLobbyService) QuickPlay(ctx context.Context, p Player, skill float64, onlinePlayers int) error {
	args := m.Called(ctx, p, skill, onlinePlayers)
	return args.Error(0)
}

func (m *MockLobbyService) Status(ctx context.Context, code string) (RoomDescription, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(RoomDescription), args.Error(1)
}

func (m *MockLobbyService) PublicRooms(ctx context.Context) []RoomDescription {
	args := m.Called(ctx)
	rooms, _ := args.Get(0).([]RoomDescription)
	return rooms
}

// --- PassageGenerator ---

type MockPassageGenerator struct {
	mock.Mock
}

func (m *MockPassageGenerator) Generate(ctx context.Context, cfg passage.Config) (string, error) {
	args := m.Called(ctx, cfg)
	return args.String(0), args.Error(1)
}

// --- MatchRecorder ---

type MockMatchRecorder struct {
	mock.Mock
}

func (m *MockMatchRecorder) RecordMatch(ctx context.Context, result domain.MatchResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

// --- SkillGetter ---

type MockSkillGetter struct {
	mock.Mock
}

func (m *MockSkillGetter) AverageWpm(ctx context.Context, userId string) (float64, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(float64), args.Error(1)
}

// --- Ticker / TickerCreator ---

type MockTicker struct {
	mock.Mock
	c chan time.Time
}

func NewMockTicker() *MockTicker {
	return &MockTicker{c: make(chan time.Time)}
}

func (m *MockTicker) C() <-chan time.Time {
	return m.c
}

func (m *MockTicker) Stop() {
	m.Called()
}

type MockTickerCreator struct {
	mock.Mock
}

func (m *MockTickerCreator) Create(d time.Duration) Ticker {
	args := m.Called(d)
	return args.Get(0).(Ticker)
}

// --- UniqueIdGenerator ---

type MockUniqueIdGenerator struct {
	mock.Mock
}

func (m *MockUniqueIdGenerator) Generate() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockUniqueIdGenerator) Dispose(id string) {
	m.Called(id)
}

// --- StatsGetter ---

type MockStatsGetter struct {
	mock.Mock
}

func (m *MockStatsGetter) GetStats(ctx context.Context, userId string) (domain.UserStats, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(domain.UserStats), args.Error(1)
}
