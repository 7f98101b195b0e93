package state

import (
	"log/slog"

	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/store"
)

type NodeStatus string

const (
	NodeOnline      NodeStatus = "online"
	NodeOffline     NodeStatus = "offline"
	NodeMaintenance NodeStatus = "maintenance"
)

type VMStatus string

const (
	VMRunning VMStatus = "running"
	VMStopped VMStatus = "stopped"
	VMPaused  VMStatus = "paused"
)

type ProxmoxNode struct {
	ID        string     `json:"id" toml:"id"`
	Name      string     `json:"name" toml:"name"`
	Address   string     `json:"address,omitempty" toml:"address"`
	Status    NodeStatus `json:"status" toml:"status"`
	CPUCores  int        `json:"cpuCores" toml:"cpu_cores"`
	MemoryGB  int        `json:"memoryGb" toml:"memory_gb"`
	StorageGB int        `json:"storageGb" toml:"storage_gb"`
	Version   string     `json:"version,omitempty" toml:"version"`
}

// ProxmoxVM belongs to the node whose id is NodeID.
type ProxmoxVM struct {
	ID       string   `json:"id" toml:"id"`
	VMID     int      `json:"vmid" toml:"vmid"`
	Name     string   `json:"name" toml:"name"`
	NodeID   string   `json:"nodeId" toml:"node_id"`
	Status   VMStatus `json:"status" toml:"status"`
	OS       string   `json:"os,omitempty" toml:"os"`
	CPUCores int      `json:"cpuCores" toml:"cpu_cores"`
	MemoryMB int      `json:"memoryMb" toml:"memory_mb"`
	DiskGB   int      `json:"diskGb" toml:"disk_gb"`
	IP       string   `json:"ip,omitempty" toml:"ip"`
}

type NodePatch struct {
	Name      *string     `json:"name"`
	Address   *string     `json:"address"`
	Status    *NodeStatus `json:"status"`
	CPUCores  *int        `json:"cpuCores"`
	MemoryGB  *int        `json:"memoryGb"`
	StorageGB *int        `json:"storageGb"`
	Version   *string     `json:"version"`
}

func (p NodePatch) apply(n ProxmoxNode) ProxmoxNode {
	set(&n.Name, p.Name)
	set(&n.Address, p.Address)
	set(&n.Status, p.Status)
	set(&n.CPUCores, p.CPUCores)
	set(&n.MemoryGB, p.MemoryGB)
	set(&n.StorageGB, p.StorageGB)
	set(&n.Version, p.Version)
	return n
}

type VMPatch struct {
	Name     *string   `json:"name"`
	NodeID   *string   `json:"nodeId"`
	Status   *VMStatus `json:"status"`
	OS       *string   `json:"os"`
	CPUCores *int      `json:"cpuCores"`
	MemoryMB *int      `json:"memoryMb"`
	DiskGB   *int      `json:"diskGb"`
	IP       *string   `json:"ip"`
}

func (p VMPatch) apply(vm ProxmoxVM) ProxmoxVM {
	set(&vm.Name, p.Name)
	set(&vm.NodeID, p.NodeID)
	set(&vm.Status, p.Status)
	set(&vm.OS, p.OS)
	set(&vm.CPUCores, p.CPUCores)
	set(&vm.MemoryMB, p.MemoryMB)
	set(&vm.DiskGB, p.DiskGB)
	set(&vm.IP, p.IP)
	return vm
}

// VMFilters narrow the VM list; pagination applies to VMs.
type VMFilters struct {
	Search string `json:"search"`
	Status string `json:"status"`
	NodeID string `json:"nodeId"`
}

type VMFiltersPatch struct {
	Search *string `json:"search"`
	Status *string `json:"status"`
	NodeID *string `json:"nodeId"`
}

func (p VMFiltersPatch) apply(f VMFilters) VMFilters {
	set(&f.Search, p.Search)
	set(&f.Status, p.Status)
	set(&f.NodeID, p.NodeID)
	return f
}

func (f VMFilters) matches(vm ProxmoxVM) bool {
	return store.MatchesSearch(f.Search, vm.Name, vm.OS, vm.IP) &&
		store.MatchesEqual(f.Status, string(vm.Status)) &&
		store.MatchesEqual(f.NodeID, vm.NodeID)
}

type ProxmoxState struct {
	Nodes        []ProxmoxNode    `json:"nodes"`
	VMs          []ProxmoxVM      `json:"vms"`
	SelectedNode *ProxmoxNode     `json:"selectedNode"`
	SelectedVM   *ProxmoxVM       `json:"selectedVm"`
	Filters      VMFilters        `json:"filters"`
	Pagination   store.Pagination `json:"pagination"`
	Loading      bool             `json:"loading"`
	Error        string           `json:"error,omitempty"`
}

func (st ProxmoxState) Filtered() []ProxmoxVM {
	out := make([]ProxmoxVM, 0, len(st.VMs))
	for _, vm := range st.VMs {
		if st.Filters.matches(vm) {
			out = append(out, vm)
		}
	}
	return out
}

func (st ProxmoxState) Page() []ProxmoxVM {
	return store.PageOf(st.Filtered(), st.Pagination)
}

// VMsOnNode lists the VMs referencing nodeID.
func (st ProxmoxState) VMsOnNode(nodeID string) []ProxmoxVM {
	var out []ProxmoxVM
	for _, vm := range st.VMs {
		if vm.NodeID == nodeID {
			out = append(out, vm)
		}
	}
	return out
}

func (st ProxmoxState) normalize() ProxmoxState {
	st.Pagination = store.Paginate(st.Pagination, len(st.Filtered()))
	if st.SelectedNode != nil {
		if n, ok := store.FindByID(st.Nodes, st.SelectedNode.ID, nodeID); ok {
			st.SelectedNode = &n
		} else {
			st.SelectedNode = nil
		}
	}
	if st.SelectedVM != nil {
		if vm, ok := store.FindByID(st.VMs, st.SelectedVM.ID, vmID); ok {
			st.SelectedVM = &vm
		} else {
			st.SelectedVM = nil
		}
	}
	return st
}

func nodeID(n ProxmoxNode) string { return n.ID }
func vmID(vm ProxmoxVM) string    { return vm.ID }

type proxmoxPersisted struct {
	Nodes []ProxmoxNode `json:"nodes"`
	VMs   []ProxmoxVM   `json:"vms"`
}

// ProxmoxStore keeps nodes and VMs newest-first.
type ProxmoxStore struct {
	s *store.Store[ProxmoxState]
}

func NewProxmoxStore(storage kv.Storage, logger *slog.Logger) *ProxmoxStore {
	ps := &ProxmoxStore{s: store.New(ProxmoxState{
		Nodes:      []ProxmoxNode{},
		VMs:        []ProxmoxVM{},
		Pagination: store.DefaultPagination(),
	})}
	attach(ps.s, storage, KeyProxmox,
		func(st ProxmoxState) proxmoxPersisted { return proxmoxPersisted{Nodes: st.Nodes, VMs: st.VMs} },
		func(cur ProxmoxState, p proxmoxPersisted) ProxmoxState {
			cur.Nodes = store.Clone(p.Nodes)
			cur.VMs = store.Clone(p.VMs)
			return cur.normalize()
		},
		logger,
	)
	return ps
}

func (ps *ProxmoxStore) State() ProxmoxState { return ps.s.Get() }

func (ps *ProxmoxStore) Subscribe(fn store.Listener[ProxmoxState]) func() { return ps.s.Subscribe(fn) }

func (ps *ProxmoxStore) update(fn func(ProxmoxState) ProxmoxState) ProxmoxState {
	return mutate(ps.s, "proxmox", func(st ProxmoxState) ProxmoxState { return fn(st).normalize() })
}

func (ps *ProxmoxStore) SetNodes(nodes []ProxmoxNode) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.Nodes = store.Unique(nodes, nodeID)
		return st
	})
}

func (ps *ProxmoxStore) SetVMs(vms []ProxmoxVM) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.VMs = store.Unique(vms, vmID)
		return st
	})
}

// AddNode inserts n unless a record with its id exists and reports
// whether it did.
func (ps *ProxmoxStore) AddNode(n ProxmoxNode) bool {
	var added bool
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.Nodes, added = store.PrependUnique(st.Nodes, n, nodeID)
		return st
	})
	return added
}

func (ps *ProxmoxStore) UpdateNode(id string, patch NodePatch) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		nodes, updated, ok := store.UpdateByID(st.Nodes, id, nodeID, patch.apply)
		if !ok {
			return st
		}
		st.Nodes = nodes
		if st.SelectedNode != nil && st.SelectedNode.ID == id {
			st.SelectedNode = &updated
		}
		return st
	})
}

// DeleteNode removes the node and every VM on it in one mutation.
func (ps *ProxmoxStore) DeleteNode(id string) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.Nodes = store.RemoveWhere(st.Nodes, func(n ProxmoxNode) bool { return n.ID == id })
		st.VMs = store.RemoveWhere(st.VMs, func(vm ProxmoxVM) bool { return vm.NodeID == id })
		if st.SelectedNode != nil && st.SelectedNode.ID == id {
			st.SelectedNode = nil
		}
		if st.SelectedVM != nil && st.SelectedVM.NodeID == id {
			st.SelectedVM = nil
		}
		return st
	})
}

func (ps *ProxmoxStore) AddVM(vm ProxmoxVM) bool {
	var added bool
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.VMs, added = store.PrependUnique(st.VMs, vm, vmID)
		return st
	})
	return added
}

func (ps *ProxmoxStore) UpdateVM(id string, patch VMPatch) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		vms, updated, ok := store.UpdateByID(st.VMs, id, vmID, patch.apply)
		if !ok {
			return st
		}
		st.VMs = vms
		if st.SelectedVM != nil && st.SelectedVM.ID == id {
			st.SelectedVM = &updated
		}
		return st
	})
}

func (ps *ProxmoxStore) DeleteVM(id string) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.VMs = store.RemoveWhere(st.VMs, func(vm ProxmoxVM) bool { return vm.ID == id })
		if st.SelectedVM != nil && st.SelectedVM.ID == id {
			st.SelectedVM = nil
		}
		return st
	})
}

func (ps *ProxmoxStore) SelectNode(id string) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.SelectedNode = nil
		if n, ok := store.FindByID(st.Nodes, id, nodeID); ok {
			st.SelectedNode = &n
		}
		return st
	})
}

func (ps *ProxmoxStore) SelectVM(id string) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.SelectedVM = nil
		if vm, ok := store.FindByID(st.VMs, id, vmID); ok {
			st.SelectedVM = &vm
		}
		return st
	})
}

func (ps *ProxmoxStore) SetFilters(patch VMFiltersPatch) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.Filters = patch.apply(st.Filters)
		st.Pagination.Page = 1
		return st
	})
}

func (ps *ProxmoxStore) ClearFilters() {
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.Filters = VMFilters{}
		st.Pagination = store.DefaultPagination()
		return st
	})
}

func (ps *ProxmoxStore) SetPage(page int) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.Pagination.Page = page
		return st
	})
}

func (ps *ProxmoxStore) SetLoading(loading bool) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.Loading = loading
		return st
	})
}

func (ps *ProxmoxStore) SetError(msg string) {
	ps.update(func(st ProxmoxState) ProxmoxState {
		st.Error = msg
		st.Loading = false
		return st
	})
}
