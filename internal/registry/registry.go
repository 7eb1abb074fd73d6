// internal/registry/registry.go
// Package registry 维护所有房间的权威内存状态。
// 每个房间的控制变更串行化(房间级锁)，不同房间互不阻塞；
// 调度节拍通过读写屏障与控制变更互斥，保证变更要么完整落在
// 节拍之前、要么完整落在之后，不会被节拍读到半更新的状态。
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"backend/internal/billing"
	"backend/internal/db"
	"backend/internal/logger"
	"backend/internal/types"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrAlreadyOccupied   = errors.New("room occupied")
	ErrNotOccupied       = errors.New("room not occupied")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Room 房间状态。调度字段仅由调度器在节拍内修改。
type Room struct {
	ID          string
	DailyRate   float64
	Occupancy   types.Occupancy
	GuestID     string
	CheckinTime time.Time

	IsOn        bool
	Mode        types.Mode
	FanSpeed    types.Speed
	TargetTemp  float64
	CurrentTemp float64
	InitialTemp float64
	Status      types.Status

	AccumulatedFee billing.Amount // 本次入住累计空调费

	// 调度状态
	EnqueuedAt  time.Time // 进入 WAITING 的时间
	ServedTicks int       // 本轮连续服务节拍数
	WaitedTicks int       // 连续等待节拍数
}

// Priority 当前请求优先级，由风速导出
func (r *Room) Priority() int {
	return r.FanSpeed.Priority()
}

// Store 房间状态的持久化端口，*db.RoomRepository 实现
type Store interface {
	GetAllRooms() ([]db.RoomInfo, error)
	Save(room *db.RoomInfo) error
	SaveAll(rooms []*db.RoomInfo) error
}

type Registry struct {
	mu     sync.RWMutex
	tickMu sync.RWMutex
	rooms  map[string]*Room
	locks  map[string]*sync.Mutex
	repo   Store // nil 时不持久化
}

func New(repo Store) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		locks: make(map[string]*sync.Mutex),
		repo:  repo,
	}
}

// AddRoom 注册一个房间(启动时调用)
func (g *Registry) AddRoom(room *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms[room.ID] = room
	g.locks[room.ID] = &sync.Mutex{}
}

// Load 从数据库恢复房间状态；库中没有的房间按种子创建
func (g *Registry) Load(seeds []*Room) error {
	existing := make(map[string]db.RoomInfo)
	if g.repo != nil {
		rooms, err := g.repo.GetAllRooms()
		if err != nil {
			return err
		}
		for _, r := range rooms {
			existing[r.RoomID] = r
		}
	}

	now := time.Now()
	for _, seed := range seeds {
		if rec, ok := existing[seed.ID]; ok {
			applyRecord(seed, rec, now)
		}
		g.AddRoom(seed)
		if g.repo != nil {
			if err := g.repo.Save(toRecord(seed)); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyRecord 将数据库记录恢复到种子房间。重启前正在服务的房间
// 没有对应的打开详单，恢复为 WAITING 重新排队，详单随再次放行重开，
// 保证每段计费区间都有详单覆盖。
func applyRecord(seed *Room, rec db.RoomInfo, now time.Time) {
	seed.DailyRate = rec.DailyRate
	seed.Occupancy = types.Occupancy(rec.Occupancy)
	seed.GuestID = rec.GuestID
	seed.CheckinTime = rec.CheckinTime
	seed.IsOn = rec.IsOn
	seed.Mode = types.Mode(rec.Mode)
	seed.FanSpeed = types.Speed(rec.FanSpeed)
	seed.TargetTemp = rec.TargetTemp
	seed.CurrentTemp = rec.CurrentTemp
	seed.InitialTemp = rec.InitialTemp
	seed.Status = types.Status(rec.Status)
	seed.AccumulatedFee = billing.Amount(rec.AccumulatedFee)

	if seed.Status == types.StatusServing {
		seed.Status = types.StatusWaiting
		seed.EnqueuedAt = now
	}
}

// Get 返回房间状态副本
func (g *Registry) Get(id string) (Room, error) {
	g.mu.RLock()
	room, ok := g.rooms[id]
	lock := g.locks[id]
	g.mu.RUnlock()
	if !ok {
		return Room{}, ErrRoomNotFound
	}

	// 节拍读锁保证快照不落在节拍中间
	g.tickMu.RLock()
	defer g.tickMu.RUnlock()
	lock.Lock()
	defer lock.Unlock()
	return *room, nil
}

// Snapshot 返回所有房间状态副本，按房间号排序
func (g *Registry) Snapshot() []Room {
	g.mu.RLock()
	ids := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	g.mu.RUnlock()
	sort.Strings(ids)

	out := make([]Room, 0, len(ids))
	for _, id := range ids {
		if room, err := g.Get(id); err == nil {
			out = append(out, room)
		}
	}
	return out
}

// Update 对单个房间执行一次串行化的控制变更。
// 持有节拍读锁，变更不会与调度节拍交错。
func (g *Registry) Update(id string, fn func(*Room) error) error {
	g.mu.RLock()
	room, ok := g.rooms[id]
	lock := g.locks[id]
	g.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}

	g.tickMu.RLock()
	defer g.tickMu.RUnlock()
	lock.Lock()
	defer lock.Unlock()

	if err := fn(room); err != nil {
		return err
	}
	g.persist(room)
	return nil
}

// Tick 以独占方式执行一次调度节拍。fn 可直接修改房间；
// 期间所有控制变更被阻塞。持久化用节拍内构建的快照在锁外进行，
// 数据库 I/O 不阻塞控制请求与状态查询。
func (g *Registry) Tick(fn func(rooms []*Room)) {
	recs := func() []*db.RoomInfo {
		g.tickMu.Lock()
		defer g.tickMu.Unlock()

		g.mu.RLock()
		rooms := make([]*Room, 0, len(g.rooms))
		for _, room := range g.rooms {
			rooms = append(rooms, room)
		}
		g.mu.RUnlock()
		sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

		fn(rooms)

		if g.repo == nil {
			return nil
		}
		out := make([]*db.RoomInfo, 0, len(rooms))
		for _, room := range rooms {
			out = append(out, toRecord(room))
		}
		return out
	}()

	if len(recs) > 0 {
		if err := g.repo.SaveAll(recs); err != nil {
			logger.Error("持久化房间状态失败: %v", err)
		}
	}
}

func (g *Registry) persist(room *Room) {
	if g.repo == nil {
		return
	}
	if err := g.repo.Save(toRecord(room)); err != nil {
		logger.Error("持久化房间 %s 失败: %v", room.ID, err)
	}
}

func toRecord(r *Room) *db.RoomInfo {
	return &db.RoomInfo{
		RoomID:         r.ID,
		DailyRate:      r.DailyRate,
		Occupancy:      string(r.Occupancy),
		GuestID:        r.GuestID,
		CheckinTime:    r.CheckinTime,
		IsOn:           r.IsOn,
		Mode:           string(r.Mode),
		FanSpeed:       string(r.FanSpeed),
		TargetTemp:     r.TargetTemp,
		CurrentTemp:    r.CurrentTemp,
		InitialTemp:    r.InitialTemp,
		Status:         string(r.Status),
		AccumulatedFee: int64(r.AccumulatedFee),
	}
}
