package service

import (
	"context"
	"errors"
	"testing"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanMoveMachine(t *testing.T) {
	allowed := [][2]string{
		{model.MachineInStock, model.MachineInTransit},
		{model.MachineInStock, model.MachineMaintenance},
		{model.MachineInStock, model.MachineDecommissioned},
		{model.MachineInTransit, model.MachineInstalled},
		{model.MachineInTransit, model.MachineInStock},
		{model.MachineInstalled, model.MachineMaintenance},
		{model.MachineInstalled, model.MachineInStock},
		{model.MachineMaintenance, model.MachineInStock},
		{model.MachineMaintenance, model.MachineDecommissioned},
	}
	for _, pair := range allowed {
		assert.True(t, CanMoveMachine(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}

	denied := [][2]string{
		{model.MachineInStock, model.MachineInstalled},
		{model.MachineInstalled, model.MachineDecommissioned},
		{model.MachineDecommissioned, model.MachineInStock},
		{model.MachineInStock, model.MachineInStock},
	}
	for _, pair := range denied {
		assert.False(t, CanMoveMachine(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
}

func newMachineFixture() (*fakeMachines, *fakeClients, *fakeAudit, *fakeEvents, MachineService) {
	machines := newFakeMachines()
	clients := newFakeClients()
	audit := &fakeAudit{}
	events := &fakeEvents{}
	return machines, clients, audit, events, NewMachineService(&fakeTx{}, machines, clients, audit, nil, events)
}

func TestMoveMachine_Lifecycle(t *testing.T) {
	ctx := context.Background()
	machines, clients, audit, events, svc := newMachineFixture()
	client := clients.add("Padaria Central", nil)
	m := machines.add("SN-100", model.MachineInStock, nil)

	_, err := svc.MoveMachine(ctx, m.ID.String(), MoveMachineRequest{ToStatus: "IN_TRANSIT"}, "")
	assert.True(t, errors.Is(err, ErrValidation), "a client is required for IN_TRANSIT")

	_, err = svc.MoveMachine(ctx, m.ID.String(), MoveMachineRequest{ToStatus: "IN_TRANSIT", ClientID: uuid.NewString()}, "")
	assert.True(t, errors.Is(err, ErrNotFound))

	resp, err := svc.MoveMachine(ctx, m.ID.String(), MoveMachineRequest{ToStatus: "in_transit", ClientID: client.ID.String(), Note: "courier"}, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, model.MachineInTransit, resp.Status)
	assert.Equal(t, client.ID.String(), resp.ClientID)

	// the client carries over from transit to installation
	resp, err = svc.MoveMachine(ctx, m.ID.String(), MoveMachineRequest{ToStatus: "INSTALLED", Location: "Counter 2"}, "")
	require.NoError(t, err)
	assert.Equal(t, model.MachineInstalled, resp.Status)
	assert.Equal(t, client.ID.String(), resp.ClientID)
	assert.Equal(t, "Counter 2", resp.Location)

	resp, err = svc.MoveMachine(ctx, m.ID.String(), MoveMachineRequest{ToStatus: "IN_STOCK"}, "")
	require.NoError(t, err)
	assert.Empty(t, resp.ClientID)

	require.Len(t, machines.movements, 3)
	assert.Equal(t, model.MachineInStock, machines.movements[0].FromStatus)
	assert.Equal(t, "courier", machines.movements[0].Note)
	assert.Equal(t, model.MachineInstalled, machines.movements[2].FromStatus)
	assert.Contains(t, audit.actions, model.ActionMoveMachine)
	assert.Len(t, events.events, 3)

	movements, err := svc.ListMovements(ctx, m.ID.String())
	require.NoError(t, err)
	assert.Len(t, movements, 3)
}

func TestMoveMachine_InvalidTransition(t *testing.T) {
	machines, _, _, _, svc := newMachineFixture()
	m := machines.add("SN-101", model.MachineDecommissioned, nil)

	_, err := svc.MoveMachine(context.Background(), m.ID.String(), MoveMachineRequest{ToStatus: "IN_STOCK"}, "")
	assert.True(t, errors.Is(err, ErrConflict))

	_, err = svc.MoveMachine(context.Background(), m.ID.String(), MoveMachineRequest{ToStatus: "LOST"}, "")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Empty(t, machines.movements)
}

func TestCreateMachine_DuplicateSerial(t *testing.T) {
	machines, _, _, _, svc := newMachineFixture()
	machines.add("SN-200", model.MachineInStock, nil)

	_, err := svc.CreateMachine(context.Background(), CreateMachineRequest{SerialNumber: "SN-200", Model: "P2"}, "")
	assert.True(t, errors.Is(err, ErrConflict))

	resp, err := svc.CreateMachine(context.Background(), CreateMachineRequest{SerialNumber: "SN-201", Model: "P2"}, "")
	require.NoError(t, err)
	assert.Equal(t, model.MachineInStock, resp.Status)
}

func TestDeleteMachine_OnlyIdleMachines(t *testing.T) {
	ctx := context.Background()
	machines, clients, _, _, svc := newMachineFixture()
	client := clients.add("Padaria Central", nil)
	installed := machines.add("SN-300", model.MachineInstalled, &client.ID)
	stocked := machines.add("SN-301", model.MachineInStock, nil)

	err := svc.DeleteMachine(ctx, installed.ID.String(), "")
	assert.True(t, errors.Is(err, ErrConflict))

	require.NoError(t, svc.DeleteMachine(ctx, stocked.ID.String(), ""))
	assert.NotContains(t, machines.rows, stocked.ID)
}

func TestStockSummary(t *testing.T) {
	machines, _, _, _, svc := newMachineFixture()
	machines.add("A", model.MachineInStock, nil)
	machines.add("B", model.MachineInStock, nil)
	machines.add("C", model.MachineMaintenance, nil)

	summary, err := svc.StockSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.MachineStatusCount{
		{Status: model.MachineInStock, Count: 2},
		{Status: model.MachineMaintenance, Count: 1},
	}, summary)
}
