package transit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stopIDs(m *Model, idxs []StopPointIdx) []string {
	var ids []string
	for _, idx := range idxs {
		ids = append(ids, m.StopPoints[idx].ID)
	}
	return ids
}

func TestStopPointsInBoundingBox(t *testing.T) {
	model := loadTestModel(t)

	// box around the city stops, airport and desert stops excluded
	found := model.StopPointsInBoundingBox(-116.77, -116.75, 36.90, 36.92)
	assert.ElementsMatch(t,
		[]string{"STAGECOACH", "NADAV", "NANAA", "DADAN", "EMSI"},
		stopIDs(model, found))
}

func TestStopPointsInBoundingBoxWholeWorld(t *testing.T) {
	model := loadTestModel(t)

	found := model.StopPointsInBoundingBox(-180, 180, -90, 90)
	assert.Len(t, found, len(model.StopPoints))
}

func TestStopPointsInBoundingBoxInvertedBounds(t *testing.T) {
	model := loadTestModel(t)

	straight := model.StopPointsInBoundingBox(-116.77, -116.75, 36.90, 36.92)
	inverted := model.StopPointsInBoundingBox(-116.75, -116.77, 36.92, 36.90)
	require.Equal(t, straight, inverted)
}

func TestStopPointsInBoundingBoxEmpty(t *testing.T) {
	model := loadTestModel(t)

	found := model.StopPointsInBoundingBox(2.0, 2.5, 48.0, 49.0)
	assert.Empty(t, found)
}
