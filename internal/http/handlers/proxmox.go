package handlers

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/state"
	"github.com/opsboard/opsboard/internal/store"
)

// ProxmoxNodes deletes cascade to the node's VMs.
func (h *Handlers) ProxmoxNodes() Resource[state.ProxmoxNode, state.NodePatch] {
	px := h.App.Proxmox
	return Resource[state.ProxmoxNode, state.NodePatch]{
		Name: "node",
		Filtered: func(c *echo.Context) []state.ProxmoxNode {
			out := []state.ProxmoxNode{}
			search, status := c.QueryParam("search"), c.QueryParam("status")
			for _, n := range px.State().Nodes {
				if store.MatchesSearch(search, n.Name, n.Address) && store.MatchesEqual(status, string(n.Status)) {
					out = append(out, n)
				}
			}
			return out
		},
		Get: func(id string) (state.ProxmoxNode, bool) {
			return store.FindByID(px.State().Nodes, id, func(n state.ProxmoxNode) string { return n.ID })
		},
		Add:    px.AddNode,
		Update: px.UpdateNode,
		Remove: px.DeleteNode,
		ID:     func(n *state.ProxmoxNode) *string { return &n.ID },
		Prepare: func(n *state.ProxmoxNode) error {
			n.Name = strings.TrimSpace(n.Name)
			if n.Name == "" {
				return errNameRequired
			}
			if n.Status == "" {
				n.Status = state.NodeOnline
			}
			return nil
		},
	}
}

func (h *Handlers) ProxmoxVMs() Resource[state.ProxmoxVM, state.VMPatch] {
	px := h.App.Proxmox
	return Resource[state.ProxmoxVM, state.VMPatch]{
		Name: "vm",
		Filtered: func(c *echo.Context) []state.ProxmoxVM {
			st := px.State()
			st.Filters = state.VMFilters{
				Search: c.QueryParam("search"),
				Status: c.QueryParam("status"),
				NodeID: c.QueryParam("node_id"),
			}
			return st.Filtered()
		},
		Get: func(id string) (state.ProxmoxVM, bool) {
			return store.FindByID(px.State().VMs, id, func(vm state.ProxmoxVM) string { return vm.ID })
		},
		Add:    px.AddVM,
		Update: px.UpdateVM,
		Remove: px.DeleteVM,
		ID:     func(vm *state.ProxmoxVM) *string { return &vm.ID },
		Prepare: func(vm *state.ProxmoxVM) error {
			vm.Name = strings.TrimSpace(vm.Name)
			if vm.Name == "" {
				return errNameRequired
			}
			if vm.NodeID == "" {
				return errors.New("nodeId is required")
			}
			if _, ok := store.FindByID(px.State().Nodes, vm.NodeID, func(n state.ProxmoxNode) string { return n.ID }); !ok {
				return errors.New("node " + vm.NodeID + " does not exist")
			}
			if vm.Status == "" {
				vm.Status = state.VMStopped
			}
			return nil
		},
	}
}
