package certvalidator

import (
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	policyA = asn1.ObjectIdentifier{1, 2, 3, 1}
	policyB = asn1.ObjectIdentifier{1, 2, 3, 2}
	policyC = asn1.ObjectIdentifier{1, 2, 3, 3}
)

func TestUpdatePolicyTreeSingleMatchingPolicy(t *testing.T) {
	root := newPolicyTreeRoot()
	root = updatePolicyTree(root, 1, []PolicyInformation{{Policy: policyA}}, false)
	require.NotNil(t, root)

	nodes := nodesAtDepth(root, 1)
	require.Len(t, nodes, 1)
	assert.Equal(t, policyA.String(), nodes[0].ValidPolicy)
}

func TestUpdatePolicyTreeNoPoliciesNullsTree(t *testing.T) {
	root := newPolicyTreeRoot()
	root = updatePolicyTree(root, 1, nil, false)
	assert.Nil(t, root)
}

func TestUpdatePolicyTreeAnyPolicyGraftsUnderEveryParent(t *testing.T) {
	root := newPolicyTreeRoot()
	root = updatePolicyTree(root, 1, []PolicyInformation{{Policy: AnyPolicy}}, true)
	require.NotNil(t, root)

	nodes := nodesAtDepth(root, 1)
	require.Len(t, nodes, 1)
	assert.Equal(t, AnyPolicy.String(), nodes[0].ValidPolicy)
}

func TestUpdatePolicyTreeTwoCertificates(t *testing.T) {
	root := newPolicyTreeRoot()
	root = updatePolicyTree(root, 1, []PolicyInformation{{Policy: policyA}}, false)
	require.NotNil(t, root)
	root = updatePolicyTree(root, 2, []PolicyInformation{{Policy: policyA}}, false)
	require.NotNil(t, root)

	nodes := nodesAtDepth(root, 2)
	require.Len(t, nodes, 1)
	assert.Equal(t, policyA.String(), nodes[0].ValidPolicy)
}

func TestUpdatePolicyTreePrunesUnmatchedBranch(t *testing.T) {
	root := newPolicyTreeRoot()
	root = updatePolicyTree(root, 1, []PolicyInformation{{Policy: policyA}, {Policy: policyB}}, false)
	require.NotNil(t, root)
	// depth 2 certificate asserts only policyA: policyB's branch must prune away.
	root = updatePolicyTree(root, 2, []PolicyInformation{{Policy: policyA}}, false)
	require.NotNil(t, root)

	assert.Len(t, nodesAtDepth(root, 1), 1)
	assert.Equal(t, policyA.String(), nodesAtDepth(root, 1)[0].ValidPolicy)
}

func TestApplyPolicyMappingRewritesExpectedSet(t *testing.T) {
	root := newPolicyTreeRoot()
	root = updatePolicyTree(root, 1, []PolicyInformation{{Policy: policyA}}, false)
	require.NotNil(t, root)

	applyPolicyMapping(root, 1, []PolicyMapping{{IssuerDomainPolicy: policyA, SubjectDomainPolicy: policyB}}, false, false)

	node := hasValidPolicy(root, 1, policyA.String())
	require.NotNil(t, node)
	assert.Equal(t, []string{policyB.String()}, node.ExpectedPolicySet)
}

func TestDeletePolicyNodesRemovesMappedNode(t *testing.T) {
	root := newPolicyTreeRoot()
	root = updatePolicyTree(root, 1, []PolicyInformation{{Policy: policyA}, {Policy: policyC}}, false)
	require.NotNil(t, root)

	deletePolicyNodes(root, 1, []string{policyA.String()})

	assert.Nil(t, hasValidPolicy(root, 1, policyA.String()))
	assert.NotNil(t, hasValidPolicy(root, 1, policyC.String()))
}

func TestPruneUnacceptableIntersectsWithAcceptableSet(t *testing.T) {
	root := newPolicyTreeRoot()
	root = updatePolicyTree(root, 1, []PolicyInformation{{Policy: policyA}, {Policy: policyB}}, false)
	require.NotNil(t, root)

	nodes := pruneUnacceptable(root, 1, []string{policyA.String()})
	require.Len(t, nodes, 1)
	assert.Equal(t, policyA.String(), nodes[0].ValidPolicy)
}

func TestPruneUnacceptableFallsBackToAnyPolicyLeaf(t *testing.T) {
	root := newPolicyTreeRoot()
	root = updatePolicyTree(root, 1, []PolicyInformation{{Policy: AnyPolicy}}, true)
	require.NotNil(t, root)

	nodes := pruneUnacceptable(root, 1, []string{policyA.String()})
	require.Len(t, nodes, 1)
	assert.Equal(t, AnyPolicy.String(), nodes[0].ValidPolicy)
}
