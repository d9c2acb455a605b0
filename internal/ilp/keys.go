package ilp

import (
	"fmt"

	"github.com/guimove/vmplacer/internal/milp"
)

type vmHostKey struct{ VMID, HostID int }

func (k vmHostKey) String() string {
	return fmt.Sprintf("x_next[vm=%d,host=%d]", k.VMID, k.HostID)
}

type groupHostKey struct{ GroupID, HostID int }

func (k groupHostKey) String() string {
	return fmt.Sprintf("x_next_vmg[group=%d,host=%d]", k.GroupID, k.HostID)
}

type pciKey struct {
	VMID, ReqIndex, HostID int
	Address                string
}

func (k pciKey) String() string {
	return fmt.Sprintf("z[vm=%d,req=%d,host=%d,addr=%s]", k.VMID, k.ReqIndex, k.HostID, k.Address)
}

type pciReqKey struct{ VMID, ReqIndex int }

type deviceKey struct {
	HostID  int
	Address string
}

type hostDStoreKey struct{ VMID, ReqID, HostID, DiskID int }

func (k hostDStoreKey) String() string {
	return fmt.Sprintf("x_next_dstore_host[vm=%d,req=%d,host=%d,disk=%d]", k.VMID, k.ReqID, k.HostID, k.DiskID)
}

type hostDiskKey struct{ HostID, DiskID int }

type sharedDStoreKey struct{ VMID, ReqID, DStoreID int }

func (k sharedDStoreKey) String() string {
	return fmt.Sprintf("x_next_dstore_shared[vm=%d,req=%d,dstore=%d]", k.VMID, k.ReqID, k.DStoreID)
}

type vnetKey struct{ VMID, NICID, VNetID int }

func (k vnetKey) String() string {
	return fmt.Sprintf("x_vnet[vm=%d,nic=%d,vnet=%d]", k.VMID, k.NICID, k.VNetID)
}

type nicKey struct{ VMID, NICID int }

type vmVNetKey struct{ VMID, VNetID int }

type vmClusterKey struct{ VMID, ClusterID int }

// exprIndex accumulates expressions per key, remembering first-insertion order
// so the constraints derived from it are emitted deterministically.
type exprIndex[K comparable] struct {
	keys  []K
	exprs map[K]milp.Expr
}

func newExprIndex[K comparable]() *exprIndex[K] {
	return &exprIndex[K]{exprs: make(map[K]milp.Expr)}
}

func (ix *exprIndex[K]) add(k K, e milp.Expr) {
	cur, ok := ix.exprs[k]
	if !ok {
		ix.keys = append(ix.keys, k)
	}
	ix.exprs[k] = cur.Plus(e)
}

func (ix *exprIndex[K]) get(k K) (milp.Expr, bool) {
	e, ok := ix.exprs[k]
	return e, ok
}

func (ix *exprIndex[K]) each(fn func(K, milp.Expr)) {
	for _, k := range ix.keys {
		fn(k, ix.exprs[k])
	}
}
