package diagnostic

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// BlockPolicySuffix is appended to the run's resource name to name the
// egress block policy.
const BlockPolicySuffix = "-block-egress"

// egressBlockPolicy denies all egress from the probe pod except DNS, so a
// healthy run reports dns_ok without https_ok.
func egressBlockPolicy(namespace string, res Resources) *networkingv1.NetworkPolicy {
	udp := corev1.ProtocolUDP
	tcp := corev1.ProtocolTCP
	dns := intstr.FromInt(53)

	return &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{
			Name:      res.Name + BlockPolicySuffix,
			Namespace: namespace,
			Labels:    res.Labels(),
		},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{
				MatchLabels: map[string]string{RunIDLabel: res.RunID},
			},
			PolicyTypes: []networkingv1.PolicyType{networkingv1.PolicyTypeEgress},
			Egress: []networkingv1.NetworkPolicyEgressRule{
				{
					Ports: []networkingv1.NetworkPolicyPort{
						{Protocol: &udp, Port: &dns},
						{Protocol: &tcp, Port: &dns},
					},
				},
			},
		},
	}
}

// ApplyEgressBlockPolicy creates a NetworkPolicy that blocks the probe
// pod's non-DNS egress, simulating a firewall that drops HTTPS.
func (t *Tester) ApplyEgressBlockPolicy(ctx context.Context, res Resources) error {
	policy := egressBlockPolicy(t.namespace, res)
	_, err := t.clientset.NetworkingV1().NetworkPolicies(t.namespace).Create(ctx, policy, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to apply network policy %s: %w", policy.Name, err)
	}
	return nil
}

// RemoveEgressBlockPolicy deletes the policy created by ApplyEgressBlockPolicy.
func (t *Tester) RemoveEgressBlockPolicy(ctx context.Context, res Resources) error {
	name := res.Name + BlockPolicySuffix
	err := t.clientset.NetworkingV1().NetworkPolicies(t.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to remove network policy %s: %w", name, err)
	}
	return nil
}
