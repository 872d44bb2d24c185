package realtime

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullState = `{"type":"state","payload":{
	"players":[
		{"id":"p1","name":"Ann","pos":3,"money":1500,"ready":true},
		{"id":"p2","name":"Bot 1","pos":12,"money":1320,"ready":true}
	],
	"properties":[
		{"id":1,"name":"Mediterranean Avenue","cost":60,"ownerId":"p2"},
		{"id":3,"name":"Baltic Avenue","cost":60,"ownerId":null}
	],
	"lastMove":{"playerId":"p2","dice":9,"bot":true},
	"started":true,
	"adminId":"p1",
	"startAmount":1500,
	"currentTurn":1
}}`

func newTestReconciler() *Reconciler {
	return NewReconciler(zerolog.Nop())
}

func TestReconciler_State(t *testing.T) {
	r := newTestReconciler()
	r.Apply([]byte(fullState))

	snap := r.Snapshot()
	assert.Equal(t, uint64(1), snap.Version)
	require.Len(t, snap.Players, 2)
	assert.Equal(t, Player{ID: "p2", Name: "Bot 1", Pos: 12, Money: 1320, Ready: true}, snap.Players[1])
	require.Len(t, snap.Properties, 2)
	assert.Equal(t, "p2", snap.Properties[0].OwnerID)
	assert.Equal(t, "", snap.Properties[1].OwnerID)
	require.NotNil(t, snap.LastMove)
	assert.Equal(t, LastMove{PlayerID: "p2", Dice: 9, Bot: true}, *snap.LastMove)
	assert.True(t, snap.Started)
	assert.Equal(t, "p1", snap.AdminID)
	require.NotNil(t, snap.StartAmount)
	assert.Equal(t, 1500, *snap.StartAmount)
	assert.Equal(t, 1, snap.CurrentTurn)
}

func TestReconciler_Idempotent(t *testing.T) {
	r := newTestReconciler()
	r.Apply([]byte(fullState))
	first := r.Snapshot()
	r.Apply([]byte(fullState))
	second := r.Snapshot()

	assert.Equal(t, first.Players, second.Players)
	assert.Equal(t, first.Properties, second.Properties)
	assert.Equal(t, first.LastMove, second.LastMove)
	assert.Equal(t, uint64(2), second.Version)
}

func TestReconciler_FullReplace(t *testing.T) {
	r := newTestReconciler()
	r.Apply([]byte(fullState))
	r.Apply([]byte(`{"type":"state","payload":{"players":[{"id":"p9","name":"Zed","pos":0,"money":1500}]}}`))

	snap := r.Snapshot()
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "p9", snap.Players[0].ID)
	assert.NotNil(t, snap.Properties)
	assert.Empty(t, snap.Properties)
	assert.Nil(t, snap.LastMove)
	assert.False(t, snap.Started)
	assert.Empty(t, snap.AdminID)
	assert.Nil(t, snap.StartAmount)
	assert.Zero(t, snap.CurrentTurn)
}

func TestReconciler_EmptyLastMove(t *testing.T) {
	r := newTestReconciler()
	r.Apply([]byte(`{"type":"state","payload":{"players":[],"lastMove":{}}}`))

	assert.Nil(t, r.Snapshot().LastMove)
}

func TestReconciler_Assigned(t *testing.T) {
	r := newTestReconciler()
	r.Apply([]byte(`{"type":"assigned","payload":{"id":"p1","roomId":"42"}}`))
	r.Apply([]byte(fullState))

	snap := r.Snapshot()
	assert.Equal(t, "p1", snap.MyPlayerID)
	assert.Equal(t, "42", snap.RoomID)
	me, ok := snap.Me()
	require.True(t, ok)
	assert.Equal(t, "Ann", me.Name)
	assert.True(t, snap.IsAdmin())
}

func TestReconciler_MalformedDropped(t *testing.T) {
	r := newTestReconciler()
	r.Apply([]byte(fullState))
	before := r.Snapshot()

	inputs := []string{
		``,
		`not json`,
		`[]`,
		`{"payload":{}}`,
		`{"type":"state","payload":"oops"}`,
		`{"type":"state","payload":{"players":{"id":"p1"}}}`,
		`{"type":"state","payload":{"players":[{"name":"no id"}]}}`,
		`{"type":"assigned","payload":{"roomId":"42"}}`,
		`{"type":"buyResult","payload":[1,2]}`,
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { r.Apply([]byte(in)) }, in)
	}

	assert.Equal(t, before, r.Snapshot())
}

func TestReconciler_UnknownTypeIgnored(t *testing.T) {
	r := newTestReconciler()
	r.Apply([]byte(`{"type":"chat","payload":{"text":"hi"}}`))

	snap := r.Snapshot()
	assert.Zero(t, snap.Version)
	assert.Empty(t, snap.Acks)
}

func TestReconciler_Acks(t *testing.T) {
	r := newTestReconciler()
	var seen []Ack
	r.OnAck(func(a Ack) { seen = append(seen, a) })

	r.Apply([]byte(`{"type":"buyResult","payload":{"success":false,"message":"Not enough money","propertyId":3}}`))
	r.Apply([]byte(`{"type":"rollResult","payload":{"dice":7}}`))
	r.Apply([]byte(`{"type":"joinResult","payload":{"success":true,"message":"Joined"}}`))
	r.Apply([]byte(`{"type":"buyResult","payload":{"success":true,"propertyId":5}}`))

	require.Len(t, seen, 4)
	assert.False(t, seen[0].Succeeded())
	assert.Equal(t, "Not enough money", seen[0].Message)
	assert.True(t, seen[1].Succeeded())

	acks := r.Snapshot().Acks
	require.Len(t, acks, 3)
	buy := acks[MessageBuyResult]
	assert.True(t, buy.Succeeded())
	require.NotNil(t, buy.PropertyID)
	assert.Equal(t, 5, *buy.PropertyID)
	roll := acks[MessageRollResult]
	require.NotNil(t, roll.Dice)
	assert.Equal(t, 7, *roll.Dice)
}

func TestReconciler_SnapshotIsCopy(t *testing.T) {
	r := newTestReconciler()
	r.Apply([]byte(fullState))

	snap := r.Snapshot()
	snap.Players[0].Pos = 39
	*snap.StartAmount = 1
	snap.LastMove.Dice = 2

	fresh := r.Snapshot()
	assert.Equal(t, 3, fresh.Players[0].Pos)
	assert.Equal(t, 1500, *fresh.StartAmount)
	assert.Equal(t, 9, fresh.LastMove.Dice)
}

func TestReconciler_OnSnapshotAndReset(t *testing.T) {
	r := newTestReconciler()
	var versions []uint64
	r.OnSnapshot(func(s Snapshot) { versions = append(versions, s.Version) })

	r.Apply([]byte(fullState))
	r.Apply([]byte(`{"type":"assigned","payload":{"id":"p1"}}`))
	r.Apply([]byte(fullState))
	assert.Equal(t, []uint64{1, 2}, versions)

	r.Reset()
	snap := r.Snapshot()
	assert.Zero(t, snap.Version)
	assert.Empty(t, snap.Players)
	assert.Empty(t, snap.MyPlayerID)
}
