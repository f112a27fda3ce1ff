package certvalidator

// PolicyNode is one node of the RFC 5280 §6.1.2(e) valid_policy_tree: a
// valid policy OID, the set of policy qualifiers asserted for it, and the
// expected_policy_set an issuer's mapping would have to satisfy for a
// subordinate node to treat this node as its parent. Depth 0 is the single
// root node (valid_policy = any_policy); depth i holds the nodes produced by
// processing the i'th certificate in the path.
type PolicyNode struct {
	ValidPolicy       string
	Qualifiers        []PolicyQualifier
	ExpectedPolicySet []string
	Parent            *PolicyNode
	Children          []*PolicyNode
	depth             int
}

// newPolicyTreeRoot returns the depth-0 any_policy root required by RFC 5280
// §6.1.2(a).
func newPolicyTreeRoot() *PolicyNode {
	return &PolicyNode{ValidPolicy: AnyPolicy.String(), ExpectedPolicySet: []string{AnyPolicy.String()}, depth: 0}
}

func (n *PolicyNode) addChild(child *PolicyNode) {
	child.Parent = n
	child.depth = n.depth + 1
	n.Children = append(n.Children, child)
}

// nodesAtDepth returns every node at the given depth, found by walking down
// from root.
func nodesAtDepth(root *PolicyNode, depth int) []*PolicyNode {
	if root == nil {
		return nil
	}
	if root.depth == depth {
		return []*PolicyNode{root}
	}
	var out []*PolicyNode
	for _, c := range root.Children {
		out = append(out, nodesAtDepth(c, depth)...)
	}
	return out
}

// hasValidPolicy reports whether any node at depth matches policy.
func hasValidPolicy(root *PolicyNode, depth int, policy string) *PolicyNode {
	for _, n := range nodesAtDepth(root, depth) {
		if n.ValidPolicy == policy {
			return n
		}
	}
	return nil
}

// updatePolicyTree implements RFC 5280 §6.1.3(d)-(f): for the certificate at
// the given depth (1-indexed: depth equals the certificate index), process
// its certificatePolicies extension (policies, with AnyPolicy meaning
// "match everything"), apply any
// policyMappings already resolved into parent expected_policy_sets by the
// caller, and prune nodes that gained no children. certHasAnyPolicy records
// whether the certificate asserted the anyPolicy OID itself, and
// anyPolicyPermitted is the running inhibit_any_policy gate: the caller
// passes true while inhibit_any_policy is still above 0, or when the
// certificate is self-issued and not the final one.
func updatePolicyTree(root *PolicyNode, depth int, policies []PolicyInformation, anyPolicyPermitted bool) *PolicyNode {
	if len(policies) == 0 {
		// RFC 5280 §6.1.3(e): no certificatePolicies extension -> set the
		// tree to NULL.
		return nil
	}

	parents := nodesAtDepth(root, depth-1)
	if len(parents) == 0 {
		return nil
	}

	certHasAnyPolicy := false
	for _, p := range policies {
		if p.Policy.String() == AnyPolicy.String() {
			certHasAnyPolicy = true
			continue
		}
		policyOID := p.Policy.String()
		matchedParent := false
		for _, parent := range parents {
			if expectedSetContains(parent, policyOID) {
				parent.addChild(&PolicyNode{ValidPolicy: policyOID, Qualifiers: p.Qualifiers, ExpectedPolicySet: []string{policyOID}})
				matchedParent = true
			}
		}
		if !matchedParent {
			for _, parent := range parents {
				if parent.ValidPolicy == AnyPolicy.String() {
					parent.addChild(&PolicyNode{ValidPolicy: policyOID, Qualifiers: p.Qualifiers, ExpectedPolicySet: []string{policyOID}})
				}
			}
		}
	}

	if certHasAnyPolicy && anyPolicyPermitted {
		for _, parent := range parents {
			if !parent.hasChildPolicy(AnyPolicy.String()) {
				var q []PolicyQualifier
				for _, p := range policies {
					if p.Policy.String() == AnyPolicy.String() {
						q = p.Qualifiers
					}
				}
				parent.addChild(&PolicyNode{ValidPolicy: AnyPolicy.String(), Qualifiers: q, ExpectedPolicySet: []string{AnyPolicy.String()}})
			}
		}
	}

	pruneChildless(root, depth)
	if len(nodesAtDepth(root, depth)) == 0 {
		return nil
	}
	return root
}

func (n *PolicyNode) hasChildPolicy(policy string) bool {
	for _, c := range n.Children {
		if c.ValidPolicy == policy {
			return true
		}
	}
	return false
}

func expectedSetContains(n *PolicyNode, policy string) bool {
	for _, p := range n.ExpectedPolicySet {
		if p == policy || p == AnyPolicy.String() {
			return true
		}
	}
	return false
}

// pruneChildless removes any node at the given depth that has no children,
// then walks back up removing any ancestor left childless, per RFC 5280
// §6.1.5(g) step 3's "prune" wording reused here for the per-certificate
// pass.
func pruneChildless(root *PolicyNode, depth int) {
	for d := depth; d > 0; d-- {
		for _, n := range nodesAtDepth(root, d-1) {
			var kept []*PolicyNode
			for _, c := range n.Children {
				if len(c.Children) > 0 || c.depth == depth {
					kept = append(kept, c)
				}
			}
			n.Children = kept
		}
	}
}

// applyPolicyMapping implements RFC 5280 §6.1.4(b): for each
// (issuerDomainPolicy, subjectDomainPolicy) mapping, rewrite the matching
// node's expected_policy_set, or, when no node at depth asserts
// issuerDomainPolicy but an anyPolicy node is present and anyPolicy is
// uninhibited, graft a new node exactly as RFC 5280 describes. When
// mappingInhibited is set it does nothing.
func applyPolicyMapping(root *PolicyNode, depth int, mappings []PolicyMapping, mappingInhibited bool, anyPolicyPermitted bool) {
	if mappingInhibited || root == nil {
		return
	}
	byIssuerDomain := map[string][]string{}
	for _, m := range mappings {
		issuer := m.IssuerDomainPolicy.String()
		byIssuerDomain[issuer] = append(byIssuerDomain[issuer], m.SubjectDomainPolicy.String())
	}
	for issuerDomain, subjectDomains := range byIssuerDomain {
		nodes := nodesOfPolicyAtDepth(root, depth, issuerDomain)
		if len(nodes) > 0 {
			for _, n := range nodes {
				n.ExpectedPolicySet = subjectDomains
			}
			continue
		}
		if !anyPolicyPermitted {
			continue
		}
		anyNodes := nodesOfPolicyAtDepth(root, depth, AnyPolicy.String())
		for _, anyNode := range anyNodes {
			for _, parent := range []*PolicyNode{anyNode.Parent} {
				if parent == nil {
					continue
				}
				parent.addChild(&PolicyNode{
					ValidPolicy:       issuerDomain,
					Qualifiers:        anyNode.Qualifiers,
					ExpectedPolicySet: subjectDomains,
				})
			}
		}
	}
}

// deletePolicyNodes implements RFC 5280 §6.1.4(a)(2): when policy mapping is
// inhibited (policy_mapping counter reaches 0) but a certificate still
// asserts a policyMappings extension, every node in the tree whose
// valid_policy names one of that extension's issuerDomainPolicy values is
// deleted outright, together with any ancestor left childless as a result.
func deletePolicyNodes(root *PolicyNode, depth int, issuerDomainPolicies []string) {
	if root == nil || len(issuerDomainPolicies) == 0 {
		return
	}
	doomed := map[string]bool{}
	for _, p := range issuerDomainPolicies {
		doomed[p] = true
	}
	for d := depth; d >= 1; d-- {
		for _, n := range nodesAtDepth(root, d-1) {
			var kept []*PolicyNode
			for _, c := range n.Children {
				if !doomed[c.ValidPolicy] {
					kept = append(kept, c)
				}
			}
			n.Children = kept
		}
	}
	pruneChildless(root, depth)
}

func nodesOfPolicyAtDepth(root *PolicyNode, depth int, policy string) []*PolicyNode {
	var out []*PolicyNode
	for _, n := range nodesAtDepth(root, depth) {
		if n.ValidPolicy == policy {
			out = append(out, n)
		}
	}
	return out
}

// pruneUnacceptable implements RFC 5280 §6.1.5(g) step iii: intersect the
// valid_policy_tree's nodes at the given depth with the caller's
// acceptable-policy set, producing the final authorities-constrained policy
// node set. A surviving anyPolicy node at that depth stands in for every
// acceptable policy when no concrete node matched, since the authorities
// along the path never narrowed the policy domain.
func pruneUnacceptable(root *PolicyNode, depth int, acceptable []string) []*PolicyNode {
	if root == nil {
		return nil
	}
	acceptAny := false
	acceptSet := map[string]bool{}
	for _, p := range acceptable {
		if p == AnyPolicy.String() {
			acceptAny = true
		}
		acceptSet[p] = true
	}

	leaves := nodesAtDepth(root, depth)
	var out []*PolicyNode
	var anyNode *PolicyNode
	for _, n := range leaves {
		if n.ValidPolicy == AnyPolicy.String() {
			anyNode = n
			continue
		}
		if acceptAny || acceptSet[n.ValidPolicy] {
			out = append(out, n)
		}
	}
	if len(out) == 0 && anyNode != nil && len(acceptable) > 0 {
		return []*PolicyNode{anyNode}
	}
	return out
}

// userDomainPolicyID walks from n toward the root and returns the valid
// policy of the first ancestor (n included) whose parent asserts anyPolicy:
// that is the policy identifier as known in the user's own policy domain,
// before any issuer-side policy mappings renamed it. An anyPolicy node has
// no user-domain rename to undo.
func userDomainPolicyID(n *PolicyNode) string {
	if n.ValidPolicy == AnyPolicy.String() {
		return AnyPolicy.String()
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Parent != nil && cur.Parent.ValidPolicy == AnyPolicy.String() {
			return cur.ValidPolicy
		}
	}
	return AnyPolicy.String()
}
